package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/paypal-pipeline/internal/config"
	"github.com/rs/zerolog"
)

// Sources holds the data source variants. Remote is nil when no credentials
// are configured.
type Sources struct {
	Remote    DataSource
	Synthetic DataSource
}

// SelectSource picks the data source for a run and reports whether falling
// back to the synthetic source is still allowed mid-run.
//
//   - remote: Remote must probe successfully; no fallback.
//   - synthetic: Synthetic; no fallback.
//   - auto: Remote if it probes successfully (fallback allowed), otherwise
//     Synthetic.
func SelectSource(ctx context.Context, mode string, sources Sources, log zerolog.Logger) (DataSource, bool, error) {
	switch mode {
	case config.SourceSynthetic:
		if sources.Synthetic == nil {
			return nil, false, fmt.Errorf("SelectSource: %w: no synthetic source", ErrSourceUnavailable)
		}
		return sources.Synthetic, false, nil

	case config.SourceRemote:
		if sources.Remote == nil {
			return nil, false, fmt.Errorf("SelectSource: %w: no credentials configured", ErrSourceUnavailable)
		}
		if err := sources.Remote.Probe(ctx); err != nil {
			return nil, false, fmt.Errorf("SelectSource: %w: %w", ErrSourceUnavailable, err)
		}
		return sources.Remote, false, nil

	case config.SourceAuto, "":
		if sources.Remote != nil {
			err := sources.Remote.Probe(ctx)
			if err == nil {
				return sources.Remote, sources.Synthetic != nil, nil
			}
			log.Warn().Err(err).Msg("Remote source probe failed, using synthetic data")
		} else {
			log.Info().Msg("No remote credentials, using synthetic data")
		}
		if sources.Synthetic == nil {
			return nil, false, fmt.Errorf("SelectSource: %w: remote unusable and no synthetic source", ErrSourceUnavailable)
		}
		return sources.Synthetic, false, nil
	}
	return nil, false, fmt.Errorf("SelectSource: unknown source mode %q", mode)
}
