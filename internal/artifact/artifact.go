// Package artifact persists the intermediate batches of a run on local disk.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/normalize"
)

// PipelineVersion is stamped into raw artifact metadata.
const PipelineVersion = "1.0.0"

// RawMetadata describes how a raw batch was obtained.
type RawMetadata struct {
	ExtractionTime    time.Time     `json:"extraction_time"`
	DateRange         domain.Window `json:"date_range"`
	TotalTransactions int           `json:"total_transactions"`
	APIEnvironment    string        `json:"api_environment"`
	ClientID          string        `json:"client_id,omitempty"`
	PipelineVersion   string        `json:"pipeline_version"`
	Source            string        `json:"source"`
}

// RawBatch is the raw artifact document.
type RawBatch struct {
	Metadata     RawMetadata       `json:"metadata"`
	Transactions []json.RawMessage `json:"transactions"`
}

// Dir lays out the artifacts of a run under Root.
type Dir struct {
	Root string
}

// RawPath is the local raw artifact for the window.
func (d Dir) RawPath(w domain.Window) string {
	return filepath.Join(d.Root, fmt.Sprintf("paypal_raw_%s.json", w.Start))
}

// ParsedPath is the local normalized artifact for the window.
func (d Dir) ParsedPath(w domain.Window) string {
	return filepath.Join(d.Root, fmt.Sprintf("paypal_parsed_%s.jsonl", w.Start))
}

// RawObjectKey is the object store key of the raw artifact.
func RawObjectKey(w domain.Window) string {
	return fmt.Sprintf("paypal/raw/%s.json", w.Key())
}

// ParsedObjectKey is the object store key of the normalized artifact.
func ParsedObjectKey(w domain.Window) string {
	return fmt.Sprintf("paypal/parsed/%s.jsonl", w.Key())
}

// WriteRaw writes batch as indented JSON.
func WriteRaw(path string, batch RawBatch) error {
	if batch.Transactions == nil {
		batch.Transactions = []json.RawMessage{}
	}
	return writeFile(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(batch)
	})
}

// ReadRaw reads a raw artifact.
func ReadRaw(path string) (RawBatch, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return RawBatch{}, fmt.Errorf("ReadRaw: %w", err)
	}
	batch, err := DecodeRaw(b)
	if err != nil {
		return RawBatch{}, fmt.Errorf("ReadRaw: %s: %w", path, err)
	}
	return batch, nil
}

// DecodeRaw parses a raw artifact already in memory.
func DecodeRaw(b []byte) (RawBatch, error) {
	var batch RawBatch
	if err := json.Unmarshal(b, &batch); err != nil {
		return RawBatch{}, fmt.Errorf("DecodeRaw: %w", err)
	}
	return batch, nil
}

// WriteParsed writes txs as newline-delimited JSON.
func WriteParsed(path string, txs []domain.Transaction) error {
	return writeFile(path, func(f *os.File) error {
		return normalize.WriteJSONL(f, txs)
	})
}

// ReadParsed reads a normalized artifact.
func ReadParsed(path string) ([]domain.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadParsed: %w", err)
	}
	defer f.Close()

	txs, err := normalize.ReadJSONL(f)
	if err != nil {
		return nil, fmt.Errorf("ReadParsed: %s: %w", path, err)
	}
	return txs, nil
}

// Remove deletes the given artifacts, ignoring ones that do not exist.
func Remove(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("Remove: %w", err)
		}
	}
	return nil
}

func writeFile(path string, write func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("writeFile: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writeFile: create: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writeFile: %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writeFile: close: %w", err)
	}
	return nil
}
