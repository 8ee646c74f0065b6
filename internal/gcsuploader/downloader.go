package gcsuploader

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// DownloadFileWithClient reads bucket/object into memory.
func DownloadFileWithClient(ctx context.Context, client *storage.Client, bucket, object string) ([]byte, error) {
	if object == "" {
		return nil, fmt.Errorf("DownloadFileWithClient: empty object name in bucket %s", bucket)
	}

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("DownloadFileWithClient: open %s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("DownloadFileWithClient: read %s/%s: %w", bucket, object, err)
	}
	return data, nil
}
