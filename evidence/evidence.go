// Package evidence stages, stores and serves files attached to anonymous reports.
package evidence

import (
	"strings"

	"anonymous-report-service/models"
)

// UploadedFile is a file received with a submission and staged on local disk.
type UploadedFile struct {
	OriginalName string
	MimeType     string
	Size         int64
	Path         string // absolute temp path
	Filename     string // temp file name
}

// Placed describes a file moved into permanent storage.
type Placed struct {
	StoredName string
	FilePath   string // relative to the storage root, forward slashes
	FileType   string
	Size       int64
}

// ClassifyMIME maps a MIME type to an evidence file type.
func ClassifyMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.FileTypeImage
	case strings.HasPrefix(mime, "video/"):
		return models.FileTypeVideo
	case strings.HasPrefix(mime, "audio/"):
		return models.FileTypeAudio
	default:
		return models.FileTypeDocument
	}
}
