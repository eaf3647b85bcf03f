package evidence

import (
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
)

const uploadPattern = "anon-upload-*"

// StageUpload copies a multipart file part into tmpDir.
func StageUpload(fh *multipart.FileHeader, tmpDir string) (*UploadedFile, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, err
	}
	out, err := os.CreateTemp(tmpDir, uploadPattern)
	if err != nil {
		return nil, err
	}
	size, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out.Name())
		return nil, err
	}

	mime := fh.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	return &UploadedFile{
		OriginalName: filepath.Base(fh.Filename),
		MimeType:     mime,
		Size:         size,
		Path:         out.Name(),
		Filename:     filepath.Base(out.Name()),
	}, nil
}

// DiscardUploads removes staged temp files, ignoring errors.
func DiscardUploads(files []*UploadedFile) {
	for _, f := range files {
		if f == nil || f.Path == "" {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			log.Warnf("Failed to remove temp upload %s: %v", f.Filename, err)
		}
	}
}

// PurgeStaleUploads removes staged uploads in tmpDir older than maxAge.
func PurgeStaleUploads(tmpDir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	prefix := strings.TrimSuffix(uploadPattern, "*")
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(tmpDir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
