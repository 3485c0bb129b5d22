package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// StagedFile is a local copy of an uploaded document.
type StagedFile struct {
	Path    string
	Size    int64
	cleanup func() error
}

// Remove deletes the local copy if it is temporary.
func (f *StagedFile) Remove() error {
	if f == nil || f.cleanup == nil {
		return nil
	}
	err := f.cleanup()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// TooLargeError reports an object above the configured size cap.
type TooLargeError struct {
	Key   string
	Size  int64
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("object %s is %d bytes, limit is %d", e.Key, e.Size, e.Limit)
}

// Stager makes uploaded documents available as local files.
type Stager interface {
	Stage(ctx context.Context, key string, maxSize int64) (*StagedFile, error)
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Ready(ctx context.Context) bool
}

// LocalStager serves keys as paths under a root directory.
type LocalStager struct {
	root string
}

// NewLocalStager stages files under dir.
func NewLocalStager(root string) *LocalStager {
	return &LocalStager{root: root}
}

func (s *LocalStager) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	path := filepath.Join(s.root, clean)
	if s.root != "" && !strings.HasPrefix(path, filepath.Clean(s.root)) {
		return "", fmt.Errorf("key %s escapes storage root", key)
	}
	return path, nil
}

// Stage returns the file in place; Remove on the result is a no-op.
func (s *LocalStager) Stage(ctx context.Context, key string, maxSize int64) (*StagedFile, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, &TooLargeError{Key: key, Size: info.Size(), Limit: maxSize}
	}
	return &StagedFile{Path: path, Size: info.Size()}, nil
}

func (s *LocalStager) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *LocalStager) Ready(ctx context.Context) bool {
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}
