package evidence

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"anonymous-report-service/utils"

	"github.com/apex/log"
)

var (
	ErrInvalidPath = errors.New("invalid evidence path")
	extPattern     = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)
)

// Storage moves staged uploads into the permanent evidence directory.
type Storage struct {
	root          string
	dir           string
	stripMetadata bool
	maxDimension  int
	maxPixels     int
	now           func() time.Time
}

type StorageOption func(*Storage)

// WithMaxPixels sets the largest image re-encoded; bigger JPEGs are stored unchanged.
// Non-positive values keep DefaultMaxPixels.
func WithMaxPixels(n int) StorageOption {
	return func(s *Storage) {
		if n > 0 {
			s.maxPixels = n
		}
	}
}

// NewStorage stores files under root/dir. dir is recorded in evidence rows.
func NewStorage(root, dir string, stripMetadata bool, maxDimension int, opts ...StorageOption) *Storage {
	s := &Storage{
		root:          root,
		dir:           path.Clean(filepath.ToSlash(dir)),
		stripMetadata: stripMetadata,
		maxDimension:  maxDimension,
		maxPixels:     DefaultMaxPixels,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureDir creates the evidence directory.
func (s *Storage) EnsureDir() error {
	return os.MkdirAll(s.abs(s.dir), 0o755)
}

// Place moves a staged upload into permanent storage under a generated name.
func (s *Storage) Place(file *UploadedFile) (*Placed, error) {
	storedName, err := utils.GenerateFileID(s.now(), safeExt(file.OriginalName))
	if err != nil {
		return nil, err
	}
	rel := path.Join(s.dir, storedName)
	dst := s.abs(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, err
	}

	size := file.Size
	stripped := false
	if s.stripMetadata && strings.EqualFold(file.MimeType, "image/jpeg") {
		n, err := s.writeStripped(file.Path, dst)
		if err == nil {
			size, stripped = n, true
		} else {
			log.Warnf("Keeping original bytes of %s: %v", file.Filename, err)
		}
	}
	if !stripped {
		if err := moveFile(file.Path, dst); err != nil {
			return nil, fmt.Errorf("move evidence: %w", err)
		}
	}

	return &Placed{
		StoredName: storedName,
		FilePath:   rel,
		FileType:   ClassifyMIME(file.MimeType),
		Size:       size,
	}, nil
}

// Remove deletes stored files by relative path, ignoring errors.
func (s *Storage) Remove(relPaths ...string) {
	for _, rel := range relPaths {
		p, err := s.resolve(rel)
		if err != nil {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warnf("Failed to remove evidence file %s: %v", rel, err)
		}
	}
}

// Open opens a stored file by the relative path recorded in its evidence row.
func (s *Storage) Open(relPath string) (*os.File, error) {
	p, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (s *Storage) writeStripped(src, dst string) (int64, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, err
	}
	out, err := StripJPEG(data, s.maxDimension, s.maxPixels)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		os.Remove(dst)
		return 0, err
	}
	os.Remove(src)
	return int64(len(out)), nil
}

// resolve maps a relative path to disk, refusing anything outside the evidence dir.
func (s *Storage) resolve(relPath string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(relPath))[1:]
	if !strings.HasPrefix(clean, s.dir+"/") {
		return "", ErrInvalidPath
	}
	return s.abs(clean), nil
}

func (s *Storage) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// moveFile renames src to dst, copying when they live on different devices.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
