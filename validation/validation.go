// Package validation checks anonymous report fields. It never touches storage.
package validation

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"anonymous-report-service/models"
)

const (
	MinDescriptionLength = 50
	MaxDescriptionLength = 5000
	MinLocationLength    = 10
	MaxLocationLength    = 500
	MaxOptionalLength    = 2000
)

// CrimeTypes is the closed set of accepted crime categories.
var CrimeTypes = []string{
	"theft",
	"assault",
	"fraud",
	"vandalism",
	"harassment",
	"drug_related",
	"cybercrime",
	"domestic_violence",
	"corruption",
	"human_trafficking",
	"environmental",
	"organized_crime",
	"threat",
	"public_safety",
	"traffic_violation",
	"other",
}

// Statuses lists every report status an admin may set.
var Statuses = []string{
	models.StatusPending,
	models.StatusReviewing,
	models.StatusReviewed,
	models.StatusInvestigating,
	models.StatusResolved,
	models.StatusDismissed,
}

var incidentTimePattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// ReportFields are the user-supplied text fields of a submission.
type ReportFields struct {
	CrimeType          string
	Description        string
	IncidentDate       string
	IncidentTime       string
	Location           string
	SuspectDescription string
	AdditionalNotes    string
}

// Result is the verdict of Validate.
type Result struct {
	Valid  bool
	Errors []string
}

// Message joins all errors into one human readable string.
func (r Result) Message() string {
	return strings.Join(r.Errors, ", ")
}

// Validate applies every field rule and collects all violations.
// now determines "today"; its location is used for calendar-day comparisons.
func Validate(fields ReportFields, now time.Time) Result {
	var errs []string

	if strings.TrimSpace(fields.CrimeType) == "" {
		errs = append(errs, "Crime type is required")
	} else if !ValidCrimeType(fields.CrimeType) {
		errs = append(errs, "Invalid crime type selected")
	}

	if strings.TrimSpace(fields.Description) == "" {
		errs = append(errs, "Description is required")
	} else if n := length(fields.Description); n < MinDescriptionLength {
		errs = append(errs, "Description must be at least 50 characters")
	} else if n > MaxDescriptionLength {
		errs = append(errs, "Description must be less than 5000 characters")
	}

	errs = append(errs, checkIncidentDate(fields.IncidentDate, now)...)

	if strings.TrimSpace(fields.IncidentTime) == "" {
		errs = append(errs, "Incident time is required")
	} else if !incidentTimePattern.MatchString(fields.IncidentTime) {
		errs = append(errs, "Invalid time format")
	}

	if strings.TrimSpace(fields.Location) == "" {
		errs = append(errs, "Location is required")
	} else if n := length(fields.Location); n < MinLocationLength {
		errs = append(errs, "Please provide a more detailed location (minimum 10 characters)")
	} else if n > MaxLocationLength {
		errs = append(errs, "Location description too long")
	}

	if length(fields.SuspectDescription) > MaxOptionalLength {
		errs = append(errs, "Suspect description too long (max 2000 characters)")
	}
	if length(fields.AdditionalNotes) > MaxOptionalLength {
		errs = append(errs, "Additional notes too long (max 2000 characters)")
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ValidCrimeType reports whether t case-insensitively names a known crime type.
func ValidCrimeType(t string) bool {
	t = strings.ToLower(strings.TrimSpace(t))
	for _, ct := range CrimeTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known report status.
func ValidStatus(s string) bool {
	for _, st := range Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// ParseIncidentDate parses YYYY-MM-DD or RFC 3339 input as a calendar day in loc.
func ParseIncidentDate(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if d, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return d, true
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		ts = ts.In(loc)
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

func checkIncidentDate(value string, now time.Time) []string {
	if strings.TrimSpace(value) == "" {
		return []string{"Incident date is required"}
	}
	loc := now.Location()
	day, ok := ParseIncidentDate(value, loc)
	if !ok {
		return []string{"Invalid date format"}
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if day.After(today) {
		return []string{"Incident date cannot be in the future"}
	}
	if day.Before(today.AddDate(-1, 0, 0)) {
		return []string{"Incident date cannot be more than 1 year ago"}
	}
	return nil
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
