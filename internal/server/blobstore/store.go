// Package blobstore holds the immutable content store: one object per record
// version, addressed by its version locator.
package blobstore

import "context"

// Store is the content store contract. Calls are independent; there are no
// multi-object transactions. Get returns common.ErrorNotFound for a missing
// key.
type Store interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
