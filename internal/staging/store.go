package staging

import "io"

// imageStore abstracts where staged image bytes live.
// Concurrency is managed by the caller (stagingArea.mu), so stores
// do not need to be safe for concurrent use.
type imageStore interface {
	// Put stores data under key, replacing anything already there.
	Put(key string, data []byte) error

	// Open returns a reader for the image stored under key.
	Open(key string) (io.ReadCloser, error)

	// Delete removes the image stored under key (best-effort).
	Delete(key string)

	// Size returns the total bytes of all stored images.
	Size() int64

	// Clear removes every stored image.
	Clear() error
}
