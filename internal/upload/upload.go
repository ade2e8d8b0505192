package upload

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/npezzotti/go-messenger/internal/apperror"
	"github.com/teris-io/shortid"
)

// MaxSize is the largest accepted upload in bytes.
const MaxSize = 10 << 20

var allowedTypes = map[string]bool{
	"jpeg": true,
	"jpg":  true,
	"png":  true,
	"gif":  true,
	"webp": true,
}

// BlobStore persists uploaded images and returns a reference clients can
// fetch them by.
type BlobStore interface {
	Save(filename, contentType string, r io.Reader) (string, error)
}

// Validate checks that both the file extension and the declared content type
// are allowed image types and that size is within MaxSize.
func Validate(filename, contentType string, size int64) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if !allowedTypes[ext] {
		return apperror.UploadRejected("only image files are allowed")
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") || !allowedTypes[strings.TrimPrefix(mediaType, "image/")] {
		return apperror.UploadRejected("only image files are allowed")
	}

	if size > MaxSize {
		return apperror.UploadTooLarge(fmt.Sprintf("file exceeds %d MB limit", MaxSize>>20))
	}

	return nil
}

// LocalStore writes blobs into a directory served under urlPrefix.
type LocalStore struct {
	dir       string
	urlPrefix string
	sid       *shortid.Shortid
}

func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		return nil, fmt.Errorf("shortid: %w", err)
	}

	return &LocalStore{
		dir:       dir,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
		sid:       sid,
	}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

// Save validates and stores the contents of r under a generated name. Readers
// longer than MaxSize are rejected and nothing is kept.
func (s *LocalStore) Save(filename, contentType string, r io.Reader) (string, error) {
	if err := Validate(filename, contentType, 0); err != nil {
		return "", err
	}

	id, err := s.sid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate name: %w", err)
	}
	name := id + strings.ToLower(filepath.Ext(filename))

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, MaxSize+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > MaxSize {
		err = Validate(filename, contentType, n)
	}
	if err != nil {
		os.Remove(f.Name())
		return "", err
	}

	return path.Join(s.urlPrefix, name), nil
}
