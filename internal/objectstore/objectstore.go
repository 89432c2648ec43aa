// Package objectstore abstracts blob storage for uploaded source files.
// Two backends exist: a local disk directory for development and a GCS
// bucket for deployment.
package objectstore

import (
	"context"
	"io"
)

// Store is the blob surface sources need: upload once, read back for
// re-parsing, delete on source removal.
type Store interface {
	// Upload writes the object and returns the path callers should
	// persist for later Download and Delete calls.
	Upload(ctx context.Context, name string, r io.Reader) (string, error)

	// Download returns the full object contents.
	Download(ctx context.Context, path string) ([]byte, error)

	// Delete removes the objects. Missing objects are not an error.
	Delete(ctx context.Context, paths []string) error
}
