package paypal

import (
	"context"
	"encoding/json"

	"github.com/dvloznov/paypal-pipeline/internal/domain"
)

// SourceName identifies records pulled from the live API.
const SourceName = "paypal_api"

// RemoteSource adapts Client and Extractor to the pipeline's data source.
type RemoteSource struct {
	Client    *Client
	Extractor *Extractor
	Options   FetchOptions
}

// NewRemoteSource wires a source over client.
func NewRemoteSource(client *Client, opts FetchOptions, extractorOpts ...ExtractorOption) *RemoteSource {
	return &RemoteSource{
		Client:    client,
		Extractor: NewExtractor(client, extractorOpts...),
		Options:   opts,
	}
}

// Name implements pipeline.DataSource.
func (s *RemoteSource) Name() string {
	return SourceName
}

// Probe checks that the API accepts the configured credentials.
func (s *RemoteSource) Probe(ctx context.Context) error {
	return s.Client.Probe(ctx)
}

// Fetch returns the raw records in window. On failure the partial records
// are returned together with the error.
func (s *RemoteSource) Fetch(ctx context.Context, window domain.Window) ([]json.RawMessage, error) {
	res, err := s.Extractor.Fetch(ctx, window, s.Options)
	return res.Records, err
}
