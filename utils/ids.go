package utils

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reportIDPattern = regexp.MustCompile(`^SV-[A-Z0-9]+$`)

// GenerateReportID returns a public report ID: SV- followed by the last four
// base-36 digits of the millisecond timestamp and six random hex digits.
func GenerateReportID(now time.Time) (string, error) {
	random := make([]byte, 3)
	if _, err := rand.Read(random); err != nil {
		return "", err
	}
	ts := strconv.FormatInt(now.UnixMilli(), 36)
	if len(ts) > 4 {
		ts = ts[len(ts)-4:]
	}
	return strings.ToUpper("SV-" + ts + hex.EncodeToString(random)), nil
}

// IsValidReportID reports whether id has the public report ID shape.
func IsValidReportID(id string) bool {
	return reportIDPattern.MatchString(id)
}

// GenerateFileID returns a collision-resistant stored file name keeping ext.
func GenerateFileID(now time.Time, ext string) (string, error) {
	random := make([]byte, 16)
	if _, err := rand.Read(random); err != nil {
		return "", err
	}
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + hex.EncodeToString(random) + ext, nil
}
