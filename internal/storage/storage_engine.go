package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when a key does not resolve to a stored object.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for keys that are empty or would escape the
	// storage root.
	ErrInvalidKey = errors.New("invalid object key")
)

// StorageEngine defines the interface for a backend that holds object
// payloads addressed by slash-separated keys relative to its root.
type StorageEngine interface {
	// Stat returns the size of the object stored under key, or ErrNotFound.
	Stat(ctx context.Context, key string) (int64, error)

	// Open returns a reader over the object stored under key along with its
	// size as observed when it was opened. The caller must close the reader.
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// Put streams r into the object stored under key and returns the number
	// of bytes written. size is the expected length, or -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64) (int64, error)
}
