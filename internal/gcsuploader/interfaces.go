package gcsuploader

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/paypal-pipeline/internal/gcs"
)

// ObjectStore is re-exported so callers need only this package.
type ObjectStore = gcs.ObjectStore

// Store is the Cloud Storage implementation of ObjectStore.
type Store struct {
	client *storage.Client
}

var _ ObjectStore = (*Store)(nil)

// NewStore opens a storage client using Application Default Credentials.
func NewStore(ctx context.Context) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewStore: create storage client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *storage.Client) *Store {
	return &Store{client: client}
}

// Close releases the storage client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Upload implements ObjectStore.
func (s *Store) Upload(ctx context.Context, bucket, object, filePath string, metadata map[string]string) (string, error) {
	return UploadFileWithClient(ctx, s.client, bucket, object, filePath, metadata)
}

// Fetch implements ObjectStore.
func (s *Store) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	return DownloadFileWithClient(ctx, s.client, bucket, object)
}
