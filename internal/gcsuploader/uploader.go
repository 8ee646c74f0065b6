package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	uploadTimeout = 2 * time.Minute
	pipelineLabel = "paypal-etl"
)

// File types recorded in object metadata.
const (
	FileTypeRaw    = "raw_transactions"
	FileTypeParsed = "parsed_transactions"
)

// UploadMetadata is the object metadata attached to every artifact.
func UploadMetadata(fileType string, now time.Time) map[string]string {
	return map[string]string{
		"pipeline":    pipelineLabel,
		"uploaded_at": now.UTC().Format(time.RFC3339),
		"file_type":   fileType,
	}
}

// UploadFileWithClient copies a local file to bucket/object and returns its
// gs:// URI.
func UploadFileWithClient(ctx context.Context, client *storage.Client, bucket, object, filePath string, metadata map[string]string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("UploadFileWithClient: open %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.Metadata = metadata
	w.ContentType = contentType(object)

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("UploadFileWithClient: copy to %s/%s: %w", bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("UploadFileWithClient: finalize %s/%s: %w", bucket, object, err)
	}

	return GCSURI(bucket, object), nil
}

// GCSURI builds gs://bucket/object.
func GCSURI(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, object)
}

// ParseGCSURI splits gs://bucket/object. The object part may be empty.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("ParseGCSURI: invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("ParseGCSURI: missing bucket: %s", uri)
	}
	if len(parts) == 2 {
		object = parts[1]
	}
	return parts[0], object, nil
}

// ExtractFilenameFromGCSURI returns the last path element of the object,
// e.g. "gs://bucket/paypal/raw/x.json" -> "x.json".
func ExtractFilenameFromGCSURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

func contentType(object string) string {
	switch path.Ext(object) {
	case ".jsonl":
		return "application/x-ndjson"
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	}
	return "application/octet-stream"
}
