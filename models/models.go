package models

import (
	"database/sql"
	"time"
)

// Report statuses
const (
	StatusPending       = "pending"
	StatusReviewing     = "reviewing"
	StatusReviewed      = "reviewed"
	StatusInvestigating = "investigating"
	StatusResolved      = "resolved"
	StatusDismissed     = "dismissed"
)

// Evidence file types
const (
	FileTypeImage    = "image"
	FileTypeVideo    = "video"
	FileTypeAudio    = "audio"
	FileTypeDocument = "document"
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AdminAssignment is the routing result of a district lookup.
type AdminAssignment struct {
	AdminUsername string
	DistrictName  string
}

// Report is a stored anonymous report. IPHash and ContentHash never leave the service.
type Report struct {
	ReportID           string
	CrimeType          string
	Description        string
	IncidentDate       string
	IncidentTime       string
	LocationAddress    string
	Latitude           *float64
	Longitude          *float64
	DistrictName       string
	AssignedAdmin      string
	SuspectDescription string
	AdditionalNotes    string
	IPHash             string
	ContentHash        string
	Status             string
	SubmittedAt        time.Time
}

type Evidence struct {
	ID           int64     `json:"id"`
	ReportID     string    `json:"report_id"`
	OriginalName string    `json:"original_name"`
	StoredName   string    `json:"stored_name"`
	FilePath     string    `json:"file_path"`
	FileType     string    `json:"file_type"`
	FileSize     int64     `json:"file_size"`
	MimeType     string    `json:"mime_type"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// ReportStatus is the public status view of a report.
type ReportStatus struct {
	ReportID      string     `json:"reportId"`
	CrimeType     string     `json:"crimeType"`
	Status        string     `json:"status"`
	StatusMessage string     `json:"statusMessage"`
	SubmittedAt   time.Time  `json:"submittedAt"`
	ReviewedAt    *time.Time `json:"reviewedAt"`
	District      *string    `json:"district"`
	EvidenceCount int        `json:"evidenceCount"`
}

// AdminReport is the admin-facing view of a report.
type AdminReport struct {
	ReportID           string     `json:"report_id"`
	CrimeType          string     `json:"crime_type"`
	Description        string     `json:"description"`
	IncidentDate       string     `json:"incident_date"`
	IncidentTime       string     `json:"incident_time"`
	LocationAddress    string     `json:"location_address"`
	Latitude           *float64   `json:"latitude"`
	Longitude          *float64   `json:"longitude"`
	DistrictName       *string    `json:"district_name"`
	AssignedAdmin      *string    `json:"assigned_admin"`
	SuspectDescription *string    `json:"suspect_description,omitempty"`
	AdditionalNotes    *string    `json:"additional_notes,omitempty"`
	Status             string     `json:"status"`
	AdminNotes         *string    `json:"admin_notes,omitempty"`
	IsFlagged          bool       `json:"is_flagged"`
	FlagReason         *string    `json:"flag_reason,omitempty"`
	SubmittedAt        time.Time  `json:"submitted_at"`
	ReviewedAt         *time.Time `json:"reviewed_at"`
	ReviewedBy         *string    `json:"reviewed_by"`
	EvidenceCount      int        `json:"evidence_count"`
}

// AdminScope identifies the caller of an admin endpoint for row scoping.
type AdminScope struct {
	Username string
	District string
}

type ReportFilter struct {
	Status string
	Page   int
	Limit  int
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type CrimeTypeCount struct {
	CrimeType string `json:"crime_type"`
	Count     int    `json:"count"`
}

type ReportStats struct {
	Total         int              `json:"total"`
	Pending       int              `json:"pending"`
	Reviewing     int              `json:"reviewing"`
	Reviewed      int              `json:"reviewed"`
	Investigating int              `json:"investigating"`
	Resolved      int              `json:"resolved"`
	Dismissed     int              `json:"dismissed"`
	Flagged       int              `json:"flagged"`
	ByType        []CrimeTypeCount `json:"byType"`
}

// HeatmapPoint is a single geolocated report as read from storage.
type HeatmapPoint struct {
	Latitude  float64
	Longitude float64
	CrimeType string
	Status    string
}

// HeatmapCell is an aggregated heatmap entry snapped to a cell center.
type HeatmapCell struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	CrimeType string  `json:"crimeType"`
	Status    string  `json:"status"`
	Count     int64   `json:"count"`
}

// ReportSubmittedEvent is published after a report is stored.
type ReportSubmittedEvent struct {
	ReportID      string    `json:"report_id"`
	CrimeType     string    `json:"crime_type"`
	DistrictName  string    `json:"district_name,omitempty"`
	AssignedAdmin string    `json:"assigned_admin,omitempty"`
	EvidenceCount int       `json:"evidence_count"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// ErrorResponse is the JSON shape of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type SubmitResponse struct {
	Success       bool   `json:"success"`
	ReportID      string `json:"reportId"`
	Message       string `json:"message"`
	EvidenceCount int    `json:"evidenceCount"`
}

type StatusResponse struct {
	Success bool          `json:"success"`
	Report  *ReportStatus `json:"report"`
}

type ReportsResponse struct {
	Success    bool          `json:"success"`
	Reports    []AdminReport `json:"reports"`
	Pagination Pagination    `json:"pagination"`
}

type ReportDetailsResponse struct {
	Success  bool        `json:"success"`
	Report   AdminReport `json:"report"`
	Evidence []Evidence  `json:"evidence"`
}

type EvidenceResponse struct {
	Success  bool       `json:"success"`
	Evidence []Evidence `json:"evidence"`
}

type StatsResponse struct {
	Success    bool        `json:"success"`
	Statistics ReportStats `json:"statistics"`
}

type HeatmapResponse struct {
	Success bool          `json:"success"`
	Data    []HeatmapCell `json:"data"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type UpdateStatusRequest struct {
	Status     string `json:"status"`
	AdminNotes string `json:"adminNotes"`
}

type FlagRequest struct {
	Flagged    bool   `json:"flagged"`
	FlagReason string `json:"flagReason"`
}

// NullString converts an empty string to SQL NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// NullFloat converts a nil pointer to SQL NULL.
func NullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
