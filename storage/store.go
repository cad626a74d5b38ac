// Package storage holds uploaded project artifacts. Projects reference artifacts by filename only;
// each backend reconstructs its own location from that name.
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when no artifact exists under a reference.
var ErrNotFound = errors.New("artifact not found")

// ErrListUnsupported is returned by backends that cannot enumerate their contents.
var ErrListUnsupported = errors.New("artifact listing not supported by this backend")

// Store is the artifact store contract.
type Store interface {
	// Save persists the content under name (or a collision-free variant of it) and returns the reference.
	Save(ctx context.Context, name string, r io.Reader, size int64) (string, error)
	// Open returns a reader for a stored artifact.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete removes an artifact. Deleting a missing artifact is not an error.
	Delete(ctx context.Context, ref string) error
}

// Object describes one stored artifact.
type Object struct {
	Ref     string
	ModTime time.Time
}

// Lister is implemented by stores that can enumerate their artifacts.
type Lister interface {
	List(ctx context.Context) ([]Object, error)
}

// validRef rejects anything that is not a bare filename.
func validRef(ref string) bool {
	if ref == "" || ref == "." || ref == ".." {
		return false
	}
	return filepath.Base(ref) == ref && !strings.ContainsAny(ref, `/\`)
}
