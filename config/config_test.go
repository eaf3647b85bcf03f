package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MAX_ANONYMOUS_SUBMISSIONS", "")
	t.Setenv("RATE_LIMIT_WINDOW", "")

	cfg := Load()
	if cfg.MaxSubmissions != 3 {
		t.Errorf("MaxSubmissions = %d, want 3", cfg.MaxSubmissions)
	}
	if cfg.RateLimitWindow != 24*time.Hour {
		t.Errorf("RateLimitWindow = %v, want 24h", cfg.RateLimitWindow)
	}
	if cfg.MaxEvidenceFiles != 10 {
		t.Errorf("MaxEvidenceFiles = %d, want 10", cfg.MaxEvidenceFiles)
	}
	if cfg.MaxEvidenceFileBytes != 50*1024*1024 {
		t.Errorf("MaxEvidenceFileBytes = %d, want 50MB", cfg.MaxEvidenceFileBytes)
	}
	if cfg.EvidenceDir != "uploads/anonymous" {
		t.Errorf("EvidenceDir = %q", cfg.EvidenceDir)
	}
}

func TestLoadOverrides(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(*Config) bool
	}{
		{"max submissions", "MAX_ANONYMOUS_SUBMISSIONS", "5", func(c *Config) bool { return c.MaxSubmissions == 5 }},
		{"bad int keeps default", "MAX_ANONYMOUS_SUBMISSIONS", "five", func(c *Config) bool { return c.MaxSubmissions == 3 }},
		{"window", "RATE_LIMIT_WINDOW", "2h", func(c *Config) bool { return c.RateLimitWindow == 2*time.Hour }},
		{"strip metadata off", "STRIP_IMAGE_METADATA", "false", func(c *Config) bool { return !c.StripImageMetadata }},
		{"abuse store lowercased", "ABUSE_STORE", "MEMORY", func(c *Config) bool { return c.AbuseStore == "memory" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if cfg := Load(); !tt.check(cfg) {
				t.Errorf("%s=%q not applied", tt.key, tt.value)
			}
		})
	}
}

func TestLocationFallback(t *testing.T) {
	cfg := &Config{Timezone: "Not/AZone"}
	if cfg.Location() != time.Local {
		t.Errorf("expected fallback to time.Local")
	}
	cfg.Timezone = "UTC"
	if cfg.Location() != time.UTC {
		t.Errorf("expected UTC")
	}
}
