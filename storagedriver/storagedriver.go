// Package storagedriver defines the key/value interface that the
// underlying object store presents to the rest of papermake. The object
// store itself is an external collaborator (spec §1): papermake consumes
// it purely through this interface, never assuming anything about the
// physical backend beyond get/put/exists/list/delete on byte-string
// keys.
package storagedriver

import (
	"context"
	"fmt"
)

// StorageDriver defines the methods a storage backend must implement for
// a filesystem-like key/value object store. Every method takes a
// context so a caller's deadline or cancellation propagates to the
// backend call.
type StorageDriver interface {
	// Name returns the human-readable name of the driver, for logging
	// and configuration.
	Name() string

	// GetContent retrieves the content stored at path.
	GetContent(ctx context.Context, path string) ([]byte, error)

	// PutContent stores content at path, overwriting any existing value.
	PutContent(ctx context.Context, path string, content []byte) error

	// Exists reports whether path has content.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the keys that are direct descendants of path.
	List(ctx context.Context, path string) ([]string, error)

	// Delete removes the content stored at path, returning
	// PathNotFoundError if nothing is stored there.
	Delete(ctx context.Context, path string) error
}

// PathNotFoundError is returned when operating on a nonexistent path.
type PathNotFoundError struct {
	Path string
}

func (err PathNotFoundError) Error() string {
	return fmt.Sprintf("storagedriver: path not found: %s", err.Path)
}

// InvalidPathError is returned when the provided path is malformed.
type InvalidPathError struct {
	Path string
}

func (err InvalidPathError) Error() string {
	return fmt.Sprintf("storagedriver: invalid path: %s", err.Path)
}
