package utils

import (
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"
)

const testSalt = "test-salt"

func TestHashIP(t *testing.T) {
	a := HashIP("203.0.113.7", testSalt)
	if a != HashIP("203.0.113.7", testSalt) {
		t.Fatalf("HashIP is not deterministic")
	}
	if len(a) != 64 || strings.ToLower(a) != a {
		t.Errorf("expected 64 lowercase hex chars, got %q", a)
	}
	if a == HashIP("203.0.113.8", testSalt) {
		t.Errorf("different IPs produced the same hash")
	}
	if a != HashIP("::ffff:203.0.113.7", testSalt) {
		t.Errorf("IPv4-mapped address must hash like its IPv4 form")
	}
	if a == HashIP("203.0.113.7", "other-salt") {
		t.Errorf("salt must change the hash")
	}
	if HashIP("", testSalt) != "" {
		t.Errorf("empty IP must return the empty sentinel")
	}
}

func TestHashContent(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		equal bool
	}{
		{"identical", "Stolen bike", "Stolen bike", true},
		{"case", "Stolen Bike", "stolen bike", true},
		{"whitespace runs", "stolen   bike\n\tnear park", "stolen bike near park", true},
		{"surrounding space", "  stolen bike ", "stolen bike", true},
		{"different text", "stolen bike", "stolen car", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HashContent(tt.a, testSalt) == HashContent(tt.b, testSalt)
			if got != tt.equal {
				t.Errorf("HashContent(%q) == HashContent(%q) is %v, want %v", tt.a, tt.b, got, tt.equal)
			}
		})
	}
	if HashContent("", testSalt) != "" {
		t.Errorf("empty content must return the empty sentinel")
	}
}

func TestFingerprintInputIsDelimited(t *testing.T) {
	a := HashContent(FingerprintInput("ab", "c", "2026-01-01", "x"), testSalt)
	b := HashContent(FingerprintInput("a", "bc", "2026-01-01", "x"), testSalt)
	if a == b {
		t.Errorf("field boundaries must be part of the fingerprint")
	}
}

func TestGenerateReportID(t *testing.T) {
	pattern := regexp.MustCompile(`^SV-[A-Z0-9]{10}$`)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := GenerateReportID(now)
		if err != nil {
			t.Fatalf("GenerateReportID: %v", err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("unexpected id format %q", id)
		}
		if !IsValidReportID(id) {
			t.Fatalf("IsValidReportID(%q) = false", id)
		}
		seen[id] = true
	}
	if len(seen) < 95 {
		t.Errorf("too many collisions: %d unique of 100", len(seen))
	}
}

func TestIsValidReportID(t *testing.T) {
	for id, want := range map[string]bool{
		"SV-ABC123":  true,
		"sv-abc123":  false,
		"SV-":        false,
		"SV-AB C":    false,
		"XX-ABC123":  false,
		"SV-AB'--":   false,
		"SV-0K2FA1B": true,
	} {
		if got := IsValidReportID(id); got != want {
			t.Errorf("IsValidReportID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestGenerateFileID(t *testing.T) {
	now := time.Now()
	a, err := GenerateFileID(now, ".jpg")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateFileID(now, ".jpg")
	if a == b {
		t.Errorf("file ids collided")
	}
	if !strings.HasSuffix(a, ".jpg") || !strings.Contains(a, "-") {
		t.Errorf("unexpected file id %q", a)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "10.0.0.2:1234", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.2:1234", "198.51.100.2"},
		{"forwarded wins over real ip", map[string]string{"X-Forwarded-For": "198.51.100.3", "X-Real-IP": "198.51.100.2"}, "10.0.0.2:1234", "198.51.100.3"},
		{"peer", nil, "192.0.2.10:5555", "192.0.2.10"},
		{"peer ipv6", nil, "[::ffff:192.0.2.10]:5555", "::ffff:192.0.2.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/anonymous-report", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeText(t *testing.T) {
	tests := map[string]string{
		"":                                  "",
		"  plain text  ":                    "plain text",
		"<script>alert(1)</script>robbery":  "alert(1)robbery",
		`he said "stop" and 'run'`:          "he said stop and run",
		"a < b > c":                         "a  c",
		"<b>bold</b> <i>italic</i>":         "bold italic",
	}
	for in, want := range tests {
		if got := SanitizeText(in); got != want {
			t.Errorf("SanitizeText(%q) = %q, want %q", in, got, want)
		}
	}
}
