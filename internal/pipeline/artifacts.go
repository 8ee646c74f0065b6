package pipeline

import (
	"context"

	"github.com/dvloznov/paypal-pipeline/internal/artifact"
	"github.com/dvloznov/paypal-pipeline/internal/fallback"
	"github.com/dvloznov/paypal-pipeline/internal/gcsuploader"
	"github.com/dvloznov/paypal-pipeline/internal/report"
	"github.com/rs/zerolog"
)

func (r *Runner) artifactDir() artifact.Dir {
	return artifact.Dir{Root: r.cfg.ArtifactDir}
}

// writeRaw persists the raw batch and uploads it. Failures are logged; the
// run continues without the artifact.
func (r *Runner) writeRaw(ctx context.Context, st *RunState, req Request, log zerolog.Logger) {
	synthetic := st.Source.Name() == fallback.SourceName
	meta := artifact.RawMetadata{
		ExtractionTime:    r.now().UTC(),
		DateRange:         st.Window,
		TotalTransactions: len(st.Raw),
		APIEnvironment:    r.cfg.APIEnvironment(),
		PipelineVersion:   artifact.PipelineVersion,
		Source:            "remote",
	}
	if synthetic {
		meta.APIEnvironment = fallback.SourceName
		meta.Source = fallback.SourceName
	} else {
		meta.ClientID = report.Mask(r.cfg.PayPalClientID, 4)
	}

	path := r.artifactDir().RawPath(st.Window)
	if err := artifact.WriteRaw(path, artifact.RawBatch{Metadata: meta, Transactions: st.Raw}); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to write raw artifact")
		st.addError(StageExtract, err)
		return
	}
	st.RawPath = path
	st.RawURI = r.upload(ctx, req, path, artifact.RawObjectKey(st.Window), gcsuploader.FileTypeRaw, log)
}

// writeParsed persists the normalized batch as NDJSON and uploads it.
func (r *Runner) writeParsed(ctx context.Context, st *RunState, req Request, log zerolog.Logger) {
	path := r.artifactDir().ParsedPath(st.Window)
	if err := artifact.WriteParsed(path, st.Normalized.Transactions); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to write parsed artifact")
		st.addError(StageNormalize, err)
		return
	}
	st.ParsedPath = path
	st.ParsedURI = r.upload(ctx, req, path, artifact.ParsedObjectKey(st.Window), gcsuploader.FileTypeParsed, log)
}

// upload returns the object URI, or "" when uploads are disabled or failed;
// callers then use the local path.
func (r *Runner) upload(ctx context.Context, req Request, path, object, fileType string, log zerolog.Logger) string {
	if r.store == nil || r.cfg.GCSBucket == "" || req.DryRun {
		return ""
	}
	uri, err := r.store.Upload(ctx, r.cfg.GCSBucket, object, path, gcsuploader.UploadMetadata(fileType, r.now()))
	if err != nil {
		log.Warn().Err(err).Str("object", object).Msg("Upload failed, using local artifact")
		return ""
	}
	log.Info().Str("uri", uri).Msg("Artifact uploaded")
	return uri
}

// cleanup removes the run's local artifacts unless they are kept.
func (r *Runner) cleanup(st *RunState, log zerolog.Logger) {
	if r.cfg.KeepArtifacts {
		return
	}
	start := r.now()
	if err := artifact.Remove(st.RawPath, st.ParsedPath); err != nil {
		log.Warn().Err(err).Msg("Cleanup failed")
	}
	r.metrics.ObserveStage(StageCleanup, r.now().Sub(start))
}
