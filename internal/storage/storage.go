// Package storage keeps uploaded product images outside the database. Products only
// hold a reference of the form "/uploads/<name>" returned by ImageStore.Save.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// URLPrefix is the path under which stored images are served.
const URLPrefix = "/uploads/"

var (
	// ErrImageNotFound is returned when no stored object has the requested name.
	ErrImageNotFound = errors.New("image not found")

	// ErrUnsupportedImage is returned by Save for file names without an allowed image extension.
	ErrUnsupportedImage = errors.New("unsupported image type")

	// ErrInvalidName is returned for names that are empty or contain path separators.
	ErrInvalidName = errors.New("invalid image name")
)

var allowedExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ObjectInfo describes one stored image.
type ObjectInfo struct {
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// ImageStore persists image bytes under generated names.
type ImageStore interface {
	// Save stores r under a fresh name derived from originalName's extension and returns its reference.
	Save(ctx context.Context, originalName string, r io.Reader) (string, error)
	// Open returns the stored bytes for name. The caller closes the reader.
	Open(ctx context.Context, name string) (io.ReadCloser, ObjectInfo, error)
	// List returns every stored image.
	List(ctx context.Context) ([]ObjectInfo, error)
	// Delete removes name. Deleting a missing image returns ErrImageNotFound.
	Delete(ctx context.Context, name string) error
}

// NewName returns a unique object name: upload time in milliseconds, a random suffix,
// and the lower-cased extension of originalName.
func NewName(originalName string, now time.Time) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if _, ok := allowedExt[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, ext)
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), suffix, ext), nil
}

// Ref returns the reference stored on a product for the object name.
func Ref(name string) string {
	return URLPrefix + name
}

// NameFromRef extracts the object name from a reference produced by Ref.
func NameFromRef(ref string) (string, bool) {
	if !strings.HasPrefix(ref, URLPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(ref, URLPrefix)
	if checkName(name) != nil {
		return "", false
	}
	return name, true
}

// ContentType guesses the MIME type from the name's extension.
func ContentType(name string) string {
	if ct, ok := allowedExt[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	return nil
}
