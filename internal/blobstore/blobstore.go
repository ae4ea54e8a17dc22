// Package blobstore persists binary cache entries (synthesized audio) by key.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists for the key.
var ErrNotFound = errors.New("blob not found")

// Store is a flat key/value store of byte blobs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}
