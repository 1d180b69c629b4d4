package domain

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by a BlobStore when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore is a key-value object store holding the snapshot.
type BlobStore interface {
	// Get returns the object's bytes, or an error wrapping ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put creates or replaces the object.
	Put(ctx context.Context, key string, data []byte) error
}
