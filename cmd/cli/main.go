package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/paypal-pipeline/internal/app"
	"github.com/dvloznov/paypal-pipeline/internal/artifact"
	"github.com/dvloznov/paypal-pipeline/internal/config"
	"github.com/dvloznov/paypal-pipeline/internal/domain"
	"github.com/dvloznov/paypal-pipeline/internal/fallback"
	"github.com/dvloznov/paypal-pipeline/internal/gcsuploader"
	"github.com/dvloznov/paypal-pipeline/internal/logger"
	"github.com/dvloznov/paypal-pipeline/internal/normalize"
	"github.com/dvloznov/paypal-pipeline/internal/pipeline"
	"github.com/dvloznov/paypal-pipeline/internal/quality"
	"github.com/dvloznov/paypal-pipeline/internal/report"
	"github.com/dvloznov/paypal-pipeline/internal/stats"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootLog := logger.New()
	cfg, err := app.LoadConfig(ctx, os.Getenv(config.ConfigFileEnv))
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := app.NewLogger(*cfg)
	ctx = logger.WithContext(ctx, log)

	args := os.Args[2:]
	switch os.Args[1] {
	case "extract":
		runExtract(ctx, *cfg, args, log)
	case "transform":
		runTransform(ctx, *cfg, args, log)
	case "load":
		runLoad(ctx, *cfg, args, log)
	case "validate":
		runValidate(ctx, *cfg, args, log)
	case "views":
		runViews(ctx, *cfg, args, log)
	case "mock":
		runMock(*cfg, args, log)
	case "run":
		runPipeline(ctx, *cfg, args, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("PayPal Pipeline CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  extract    Fetch raw transactions for a window into a raw artifact")
	fmt.Println("  transform  Normalize a raw artifact to jsonl, json or csv")
	fmt.Println("  load       Load a normalized jsonl file or gs:// URI into the sink")
	fmt.Println("  validate   Run the data quality checks against the sink")
	fmt.Println("  views      Create or replace the reporting views")
	fmt.Println("  mock       Generate a synthetic raw artifact")
	fmt.Println("  run        Run the whole pipeline once")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// windowFlags registers -start/-end; the default window is yesterday.
func windowFlags(fs *flag.FlagSet) func() domain.Window {
	start := fs.String("start", "", "Window start date YYYY-MM-DD (default yesterday)")
	end := fs.String("end", "", "Window end date YYYY-MM-DD (default -start)")
	return func() domain.Window {
		if *start == "" {
			if *end != "" {
				fmt.Fprintln(os.Stderr, "-end requires -start")
				os.Exit(2)
			}
			return domain.DayBefore(time.Now())
		}
		w, err := domain.ParseWindow(*start, *end)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid window: %v\n", err)
			os.Exit(2)
		}
		return w
	}
}

func runExtract(ctx context.Context, cfg config.Config, args []string, log zerolog.Logger) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	window := windowFlags(fs)
	source := fs.String("source", cfg.Source, "Data source: auto, remote or synthetic")
	out := fs.String("out", "", "Output path (default ARTIFACT_DIR/paypal_raw_{start}.json)")
	fs.Parse(args)

	w := window()
	src, _, err := pipeline.SelectSource(ctx, *source, app.NewSources(cfg, nil, log), log)
	if err != nil {
		log.Fatal().Err(err).Msg("No usable data source")
	}

	raws, err := src.Fetch(ctx, w)
	if err != nil && len(raws) == 0 {
		log.Fatal().Err(err).Msg("Extraction failed")
	}
	if err != nil {
		log.Warn().Err(err).Int("records", len(raws)).Msg("Extraction stopped early, keeping partial records")
	}

	meta := artifact.RawMetadata{
		ExtractionTime:    time.Now().UTC(),
		DateRange:         w,
		TotalTransactions: len(raws),
		APIEnvironment:    cfg.APIEnvironment(),
		PipelineVersion:   artifact.PipelineVersion,
		Source:            "remote",
		ClientID:          report.Mask(cfg.PayPalClientID, 4),
	}
	if src.Name() == fallback.SourceName {
		meta.APIEnvironment = fallback.SourceName
		meta.Source = fallback.SourceName
		meta.ClientID = ""
	}

	path := *out
	if path == "" {
		path = artifact.Dir{Root: cfg.ArtifactDir}.RawPath(w)
	}
	if err := artifact.WriteRaw(path, artifact.RawBatch{Metadata: meta, Transactions: raws}); err != nil {
		log.Fatal().Err(err).Msg("Failed to write raw artifact")
	}

	fmt.Printf("Extracted %s transactions from %s into %s\n", report.Count(int64(len(raws))), src.Name(), path)
}

func runTransform(ctx context.Context, cfg config.Config, args []string, log zerolog.Logger) {
	fs := flag.NewFlagSet("transform", flag.ExitOnError)
	in := fs.String("in", "", "Raw artifact path or gs:// URI")
	out := fs.String("out", "-", "Output path, - for stdout")
	format := fs.String("format", string(normalize.FormatJSONL), "Output format: jsonl, json or csv")
	statsOut := fs.String("stats", "", "Also write batch statistics JSON to this path")
	fs.Parse(args)

	if *in == "" {
		log.Fatal().Msg("Error: -in is required")
	}
	f, err := normalize.ParseFormat(*format)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -format")
	}

	batch, err := readRawArtifact(ctx, *in, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read raw artifact")
	}

	res, err := normalize.New(normalize.WithLogger(log)).Batch(ctx, batch.Transactions)
	if err != nil {
		log.Fatal().Err(err).Msg("Normalization failed")
	}

	if err := writeTo(*out, func(w io.Writer) error { return normalize.Encode(w, f, res, time.Now()) }); err != nil {
		log.Fatal().Err(err).Msg("Failed to write output")
	}

	if *statsOut != "" {
		s := stats.Summarize(res.Transactions, len(res.Failures), len(res.Findings))
		if err := writeTo(*statsOut, func(w io.Writer) error { return writeJSON(w, s) }); err != nil {
			log.Fatal().Err(err).Msg("Failed to write statistics")
		}
	}

	log.Info().
		Int("transformed", len(res.Transactions)).
		Int("parsing_errors", len(res.Failures)).
		Int("validation_findings", len(res.Findings)).
		Float64("success_rate", res.SuccessRate()).
		Msg("Transform completed")
}

// readRawArtifact reads a local raw artifact, or downloads it when path is a
// gs:// URI.
func readRawArtifact(ctx context.Context, path string, log zerolog.Logger) (artifact.RawBatch, error) {
	if !strings.HasPrefix(path, "gs://") {
		return artifact.ReadRaw(path)
	}
	store, err := gcsuploader.NewStore(ctx)
	if err != nil {
		return artifact.RawBatch{}, err
	}
	defer store.Close()

	log.Info().Str("object", gcsuploader.ExtractFilenameFromGCSURI(path)).Msg("Downloading raw artifact")
	data, err := store.Fetch(ctx, path)
	if err != nil {
		return artifact.RawBatch{}, err
	}
	return artifact.DecodeRaw(data)
}

// streamer is implemented by sinks that accept rows without a load job.
type streamer interface {
	Insert(ctx context.Context, txs []domain.Transaction) error
}

func runLoad(ctx context.Context, cfg config.Config, args []string, log zerolog.Logger) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	window := windowFlags(fs)
	in := fs.String("in", "", "Normalized jsonl file")
	uri := fs.String("uri", "", "gs:// URI of a normalized jsonl object (bigquery sink only)")
	disposition := fs.String("disposition", cfg.WriteDisposition, "WRITE_APPEND, WRITE_TRUNCATE or WRITE_EMPTY")
	stream := fs.Bool("stream", false, "Stream the -in rows with inserts instead of a load job (bigquery sink only)")
	fs.Parse(args)

	if *in == "" && *uri == "" {
		log.Fatal().Msg("Error: -in or -uri is required")
	}

	sink, closeSink := mustOpenSink(ctx, cfg, log)
	defer closeSink()

	if err := sink.Ensure(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure sink table")
	}

	if *stream {
		s, ok := sink.(streamer)
		if !ok || *in == "" {
			log.Fatal().Str("sink", sink.Name()).Msg("-stream needs -in and a bigquery sink")
		}
		txs, err := artifact.ReadParsed(*in)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read normalized file")
		}
		if err := s.Insert(ctx, txs); err != nil {
			log.Fatal().Err(err).Msg("Streaming insert failed")
		}
		fmt.Printf("Streamed %s rows into %s\n", report.Count(int64(len(txs))), sink.Name())
		return
	}
	res, err := sink.Load(ctx, domain.LoadRequest{
		Window:           window(),
		LocalPath:        *in,
		URI:              *uri,
		WriteDisposition: *disposition,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Load failed")
	}

	fmt.Printf("Loaded %s rows (%s) into %s, job %s\n",
		report.Count(res.OutputRows), report.HumanBytes(res.InputBytes), sink.Name(), res.JobID)
}

func runValidate(ctx context.Context, cfg config.Config, args []string, log zerolog.Logger) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	date := fs.String("date", "", "Validate only this transaction date YYYY-MM-DD (default whole table)")
	fs.Parse(args)

	var filter *civil.Date
	if *date != "" {
		d, err := civil.ParseDate(*date)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -date")
		}
		filter = &d
	}

	sink, closeSink := mustOpenSink(ctx, cfg, log)
	defer closeSink()

	rep := quality.Validate(ctx, sink, filter, log)
	if err := writeJSON(os.Stdout, rep); err != nil {
		log.Fatal().Err(err).Msg("Failed to print report")
	}
	if len(rep.Errors) > 0 {
		closeSink()
		os.Exit(1)
	}
}

func runViews(ctx context.Context, cfg config.Config, args []string, log zerolog.Logger) {
	fs := flag.NewFlagSet("views", flag.ExitOnError)
	fs.Parse(args)

	sink, closeSink := mustOpenSink(ctx, cfg, log)
	defer closeSink()

	n, err := sink.CreateViews(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create views")
	}
	fmt.Printf("Created %d views in %s\n", n, sink.Name())
}

func runMock(cfg config.Config, args []string, log zerolog.Logger) {
	fs := flag.NewFlagSet("mock", flag.ExitOnError)
	window := windowFlags(fs)
	count := fs.Int("count", cfg.FallbackCount, "Number of transactions")
	out := fs.String("out", "", "Output path (default ARTIFACT_DIR/paypal_raw_{start}.json)")
	fs.Parse(args)

	w := window()
	raws, err := fallback.Generate(w, *count)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate synthetic batch")
	}

	path := *out
	if path == "" {
		path = artifact.Dir{Root: cfg.ArtifactDir}.RawPath(w)
	}
	err = artifact.WriteRaw(path, artifact.RawBatch{
		Metadata: artifact.RawMetadata{
			ExtractionTime:    time.Now().UTC(),
			DateRange:         w,
			TotalTransactions: len(raws),
			APIEnvironment:    fallback.SourceName,
			PipelineVersion:   artifact.PipelineVersion,
			Source:            fallback.SourceName,
		},
		Transactions: raws,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to write raw artifact")
	}
	fmt.Printf("Wrote %d synthetic transactions to %s\n", len(raws), path)
}

func runPipeline(ctx context.Context, cfg config.Config, args []string, log zerolog.Logger) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	start := fs.String("start", "", "Window start date YYYY-MM-DD (default yesterday)")
	end := fs.String("end", "", "Window end date YYYY-MM-DD (default -start)")
	source := fs.String("source", "", "Data source override")
	sinkName := fs.String("sink", cfg.Sink, "Sink: bigquery, sqlite or none")
	dryRun := fs.Bool("dry-run", false, "Skip uploads, loads and run history")
	fs.Parse(args)

	cfg.Sink = *sinkName
	req := pipeline.Request{Source: *source, DryRun: *dryRun}
	if *start != "" {
		w, err := domain.ParseWindow(*start, *end)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid window")
		}
		req.Window = &w
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize pipeline")
	}
	defer a.Close()

	summary, runErr := a.Runner().Run(ctx, req)
	fmt.Print(summary.Text())
	if runErr != nil {
		a.Close()
		os.Exit(1)
	}
}

func mustOpenSink(ctx context.Context, cfg config.Config, log zerolog.Logger) (pipeline.Sink, func()) {
	sink, closer, err := app.OpenSink(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open sink")
	}
	if sink == nil {
		log.Fatal().Msg("No sink configured; set PIPELINE_SINK to bigquery or sqlite")
	}
	var once sync.Once
	return sink, func() {
		once.Do(func() {
			if err := closer(); err != nil {
				log.Warn().Err(err).Msg("Failed to close sink")
			}
		})
	}
}

func writeTo(path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writeTo: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
