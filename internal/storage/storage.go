// Package storage persists rendered export images. The pipeline hands over
// raw bytes keyed by export identifier and does not care where they land.
package storage

import "context"

// Store is the persistence collaborator for captured images. Put returns a
// location (URL or path) for the stored object.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}
