// Package storage uploads build artifacts and archived sources to an object
// store, compressing every object and recording its MIME type.
package storage

import (
	"context"
	"errors"
	"time"
)

// Backend stores objects by key. Keys are slash separated paths such as
// "rustdoc/foo/1.0.0/foo/index.html".
type Backend interface {
	// Put stores an object, replacing any object with the same key.
	Put(ctx context.Context, obj *Object) error

	// Get retrieves an object. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, key string) (*Object, error)

	// Exists checks if an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes an object. Returns ErrNotFound if it doesn't exist.
	Delete(ctx context.Context, key string) error

	// List returns the keys starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Object is one stored artifact.
type Object struct {
	Key string

	// MimeType is the content type of the uncompressed data.
	MimeType string

	// Compression names the algorithm Data is encoded with, or "" for none.
	Compression string

	// Size is the uncompressed size in bytes.
	Size int64

	// Data is the stored (possibly compressed) content.
	Data []byte

	Metadata Metadata
}

// Metadata stores object metadata.
type Metadata struct {
	CreatedAt time.Time         `json:"created_at"`
	Custom    map[string]string `json:"custom,omitempty"`
}

// ErrNotFound is returned when an object doesn't exist.
type ErrNotFound struct {
	Key string
}

func (e ErrNotFound) Error() string {
	return "object not found: " + e.Key
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}
