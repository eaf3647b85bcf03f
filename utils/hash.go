package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// fingerprintSeparator delimits fields of the content fingerprint input so
// that different field splits of the same text never collide.
const fingerprintSeparator = "\x1f"

// HashIP returns the salted SHA-256 hex digest of a client IP.
// IPv4-mapped IPv6 addresses hash the same as their IPv4 form.
// An empty IP yields an empty hash, which callers treat as "no signal".
func HashIP(ip, salt string) string {
	if ip == "" {
		return ""
	}
	normalized := strings.TrimPrefix(ip, "::ffff:")
	return digest(normalized + salt)
}

// HashContent returns the salted SHA-256 hex digest of normalized report text.
// Case and whitespace differences do not change the result.
func HashContent(content, salt string) string {
	if content == "" {
		return ""
	}
	normalized := strings.TrimSpace(whitespaceRun.ReplaceAllString(strings.ToLower(content), " "))
	return digest(normalized + salt)
}

// FingerprintInput builds the duplicate-detection input of a report.
// Fields are trimmed so surrounding whitespace never splits a duplicate.
func FingerprintInput(crimeType, description, incidentDate, location string) string {
	fields := []string{crimeType, description, incidentDate, location}
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return strings.Join(fields, fingerprintSeparator)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
