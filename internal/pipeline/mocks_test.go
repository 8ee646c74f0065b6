package pipeline_test

import (
	"context"
	"encoding/json"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/pipeline"
	"github.com/dvloznov/paypal-pipeline/internal/quality"
)

// MockSource is a DataSource with overridable behavior.
type MockSource struct {
	NameValue string
	ProbeFunc func(ctx context.Context) error
	FetchFunc func(ctx context.Context, window domain.Window) ([]json.RawMessage, error)
	fetches   int
}

func (m *MockSource) Name() string { return m.NameValue }

func (m *MockSource) Probe(ctx context.Context) error {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx)
	}
	return nil
}

func (m *MockSource) Fetch(ctx context.Context, window domain.Window) ([]json.RawMessage, error) {
	m.fetches++
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, window)
	}
	return nil, nil
}

// MockSink is a Sink and RunRecorder. Checks return fixed counts.
type MockSink struct {
	EnsureFunc func(ctx context.Context) error
	LoadFunc   func(ctx context.Context, req domain.LoadRequest) (domain.LoadResult, error)

	Rows    int64
	Unique  int64
	NullIDs int64

	mu       sync.Mutex
	loads    []domain.LoadRequest
	started  []domain.RunRecord
	finished []domain.RunRecord
	checked  []*civil.Date
}

var (
	_ pipeline.Sink        = (*MockSink)(nil)
	_ pipeline.RunRecorder = (*MockSink)(nil)
)

func (m *MockSink) Name() string { return "mock" }

func (m *MockSink) Ensure(ctx context.Context) error {
	if m.EnsureFunc != nil {
		return m.EnsureFunc(ctx)
	}
	return nil
}

func (m *MockSink) Load(ctx context.Context, req domain.LoadRequest) (domain.LoadResult, error) {
	m.mu.Lock()
	m.loads = append(m.loads, req)
	m.mu.Unlock()
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, req)
	}
	n := int64(len(req.Transactions))
	return domain.LoadResult{JobID: "job-1", State: domain.LoadStateDone, OutputRows: n, UpdatedRows: n}, nil
}

func (m *MockSink) CreateViews(ctx context.Context) (int, error) { return 3, nil }

func (m *MockSink) StartRun(ctx context.Context, rec domain.RunRecord) error {
	m.started = append(m.started, rec)
	return nil
}

func (m *MockSink) FinishRun(ctx context.Context, rec domain.RunRecord) error {
	m.finished = append(m.finished, rec)
	return nil
}

func (m *MockSink) TotalRows(ctx context.Context, date *civil.Date) (int64, error) {
	m.checked = append(m.checked, date)
	return m.Rows, nil
}

func (m *MockSink) UniqueTransactions(ctx context.Context, date *civil.Date) (int64, error) {
	return m.Unique, nil
}

func (m *MockSink) NullTransactionIDs(ctx context.Context, date *civil.Date) (int64, error) {
	return m.NullIDs, nil
}

func (m *MockSink) DateRange(ctx context.Context, date *civil.Date) (quality.DateRange, error) {
	return quality.DateRange{}, nil
}

func (m *MockSink) StatusDistribution(ctx context.Context, date *civil.Date) ([]quality.StatusCount, error) {
	return nil, nil
}

func (m *MockSink) AmountSummary(ctx context.Context, date *civil.Date) (quality.AmountSummary, error) {
	return quality.AmountSummary{}, nil
}

// MockObjectStore records uploads.
type MockObjectStore struct {
	UploadFunc func(ctx context.Context, bucket, object, filePath string, metadata map[string]string) (string, error)
	objects    []string
}

func (m *MockObjectStore) Upload(ctx context.Context, bucket, object, filePath string, metadata map[string]string) (string, error) {
	m.objects = append(m.objects, object)
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, bucket, object, filePath, metadata)
	}
	return "gs://" + bucket + "/" + object, nil
}

func (m *MockObjectStore) Fetch(ctx context.Context, uri string) ([]byte, error) {
	return nil, nil
}

// MockNotifier collects summaries.
type MockNotifier struct {
	NotifyFunc func(ctx context.Context, s pipeline.Summary) error
	summaries  []pipeline.Summary
}

func (m *MockNotifier) Notify(ctx context.Context, s pipeline.Summary) error {
	m.summaries = append(m.summaries, s)
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, s)
	}
	return nil
}
