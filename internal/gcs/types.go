package gcs

import (
	"context"
)

// ObjectStore persists run artifacts in a bucket. Implementations return the
// gs:// URI of an uploaded object.
type ObjectStore interface {
	// Upload copies a local file to bucket/object with the given object metadata.
	Upload(ctx context.Context, bucket, object, filePath string, metadata map[string]string) (string, error)

	// Fetch downloads the object at a gs:// URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}
