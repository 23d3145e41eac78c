package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gyeh/radwarehouse/internal/config"
	"github.com/gyeh/radwarehouse/internal/db"
	"github.com/gyeh/radwarehouse/internal/exitcode"
	"github.com/gyeh/radwarehouse/internal/extract"
	"github.com/gyeh/radwarehouse/internal/ingest"
	"github.com/gyeh/radwarehouse/internal/logging"
	"github.com/gyeh/radwarehouse/internal/warehouse"
)

var cfg = config.Default()

// Flag values that override the config file only when set explicitly.
var (
	configPath string
	sampleSize int
	sourceKind string
	sourcePath string
)

var rootCmd = &cobra.Command{
	Use:   "radwh",
	Short: "Radiology imaging staging → production → warehouse ETL",
	Long: "Extracts chest imaging records into a Postgres staging table, promotes them into the " +
		"operational schema and rebuilds the dimensional warehouse on top.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.DSN, "dsn", os.Getenv("DATABASE_URL"), "Postgres connection string (or set DATABASE_URL)")
	pf.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&configPath, "config", "", "YAML config file overriding the built-in defaults")
	pf.IntVar(&sampleSize, "sample-size", cfg.SampleSize, "Number of records to extract")
	pf.StringVar(&sourceKind, "source", cfg.Source.Kind, "Record source: synthetic, parquet, dicom or hub")
	pf.StringVar(&sourcePath, "source-path", "", "Parquet file or DICOM directory for --source parquet|dicom")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitcode.UsageError)
	}
}

// loadConfig layers the config file and explicit flags over the defaults.
func loadConfig(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			return err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("sample-size") {
		cfg.SampleSize = sampleSize
	}
	if flags.Changed("source") {
		cfg.Source.Kind = sourceKind
	}
	if flags.Changed("source-path") {
		cfg.Source.Path = sourcePath
	}
	return nil
}

// connect validates the config and opens the single-connection pool,
// exiting with the matching code on failure.
func connect(ctx context.Context, log zerolog.Logger) *pgxpool.Pool {
	if err := cfg.ValidateWithDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	return pool
}

func newPipeline(pool *pgxpool.Pool, log zerolog.Logger) *ingest.Pipeline {
	src, err := extract.NewSource(cfg.Source)
	if err != nil {
		log.Error().Err(err).Msg("invalid source")
		os.Exit(exitcode.UsageError)
	}
	return &ingest.Pipeline{
		Conn:      pool,
		Log:       log,
		Config:    &cfg,
		Source:    src,
		Synth:     extract.NewSynthesizer(rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), nil),
		Picker:    ingest.NewRandomPicker(nil),
		Refresher: &warehouse.SQLRefresher{Conn: pool},
	}
}

// codeFor maps a pipeline result to the process exit code for its failure
// class.
func codeFor(err error) int {
	if err == nil {
		return exitcode.Success
	}
	var pe *ingest.PipelineError
	if !errors.As(err, &pe) {
		return exitcode.TransformError
	}
	switch pe.Phase {
	case ingest.PhasePreflight:
		if errors.Is(pe.Err, ingest.ErrSchemaMissing) {
			return exitcode.ValidationError
		}
		return exitcode.DBConnError
	case ingest.PhaseStage:
		return exitcode.StageError
	case ingest.PhaseRefresh:
		return exitcode.PartialSuccess
	default:
		return exitcode.TransformError
	}
}

// exitForError logs err and exits with the code for its failure class.
func exitForError(log zerolog.Logger, what string, err error) {
	var pe *ingest.PipelineError
	if errors.As(err, &pe) {
		log.Error().Err(pe.Err).Str("phase", pe.Phase).Msg(what + " failed")
	} else {
		log.Error().Err(err).Msg(what + " failed")
	}
	os.Exit(codeFor(err))
}

func setup() (context.Context, zerolog.Logger) {
	return context.Background(), logging.Setup(cfg.LogFormat)
}
