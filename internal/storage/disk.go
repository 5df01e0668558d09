package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DiskStore keeps images as files in a single directory.
type DiskStore struct {
	Dir string

	now func() time.Time
}

// NewDiskStore creates dir if needed and returns a store rooted there.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{Dir: dir, now: time.Now}, nil
}

func (s *DiskStore) Save(ctx context.Context, originalName string, r io.Reader) (string, error) {
	name, err := NewName(originalName, s.now())
	if err != nil {
		return "", err
	}

	p := filepath.Join(s.Dir, name)
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(p)
		return "", fmt.Errorf("write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p)
		return "", fmt.Errorf("close image file: %w", err)
	}
	return Ref(name), nil
}

func (s *DiskStore) Open(ctx context.Context, name string) (io.ReadCloser, ObjectInfo, error) {
	if err := checkName(name); err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(filepath.Join(s.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ObjectInfo{}, ErrImageNotFound
	}
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("open image: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat image: %w", err)
	}
	if st.IsDir() {
		f.Close()
		return nil, ObjectInfo{}, ErrImageNotFound
	}
	return f, ObjectInfo{
		Name:        name,
		Size:        st.Size(),
		ContentType: ContentType(name),
		ModTime:     st.ModTime(),
	}, nil
}

func (s *DiskStore) List(ctx context.Context) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}
	out := make([]ObjectInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		out = append(out, ObjectInfo{
			Name:        e.Name(),
			Size:        info.Size(),
			ContentType: ContentType(e.Name()),
			ModTime:     info.ModTime(),
		})
	}
	return out, nil
}

func (s *DiskStore) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrImageNotFound
	}
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}
