// Package blobstore defines the durable byte store the index is persisted to.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Read when the key has never been written or was
// deleted.
var ErrNotExist = errors.New("blob does not exist")

// Store is a durable key-value byte store keyed by a named location.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
