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

const tmpSuffix = ".tmp"

// LocalStore keeps artifacts as plain files in one server-local directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	//nolint:gosec // uploads are served back through the API only
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure upload dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Save(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	if !validRef(name) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*"+tmpSuffix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	ref := name
	for attempt := 0; attempt < 3; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		// Link fails if the target exists, so concurrent uploads never overwrite each other.
		if err := os.Link(tmpPath, filepath.Join(s.dir, ref)); err == nil {
			return ref, nil
		} else if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to commit artifact: %w", err)
		}
		ref = withUniqueSuffix(name)
	}
	return "", fmt.Errorf("failed to find a free name for %q", name)
}

func (s *LocalStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	if !validRef(ref) {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *LocalStore) Delete(_ context.Context, ref string) error {
	if !validRef(ref) {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns every committed artifact, skipping in-flight temp files.
func (s *LocalStore) List(_ context.Context) ([]Object, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	objects := make([]Object, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), tmpSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		objects = append(objects, Object{Ref: entry.Name(), ModTime: info.ModTime()})
	}
	return objects, nil
}
