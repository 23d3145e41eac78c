// Package extract fetches imaging records from an external source, falling
// back to synthetic records when the source is unavailable.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/radwarehouse/internal/config"
	"github.com/gyeh/radwarehouse/internal/model"
)

// Source fetches up to n records from an external system.
type Source interface {
	Name() string
	Fetch(ctx context.Context, n int) ([]model.SourceRecord, error)
}

// Result is the outcome of one extraction.
type Result struct {
	Records      []model.SourceRecord
	Source       string
	UsedFallback bool
	Duration     time.Duration
}

// Extract fetches n records from src. Any fetch failure, an empty result or
// a nil source falls back to synth; Extract itself never fails.
func Extract(ctx context.Context, log zerolog.Logger, src Source, n int, synth *Synthesizer) *Result {
	start := time.Now()

	if src != nil {
		log.Info().Str("source", src.Name()).Int("sample_size", n).Msg("fetching source records")
		records, err := src.Fetch(ctx, n)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("source", src.Name()).Msg("source fetch failed, generating synthetic records")
		case len(records) == 0:
			log.Warn().Str("source", src.Name()).Msg("source returned no records, generating synthetic records")
		default:
			if len(records) > n {
				records = records[:n]
			}
			dur := time.Since(start)
			log.Info().
				Str("source", src.Name()).
				Int("records", len(records)).
				Dur("duration", dur).
				Msg("extraction complete")
			return &Result{Records: records, Source: src.Name(), Duration: dur}
		}
	}

	records := synth.Generate(n)
	dur := time.Since(start)
	log.Info().Int("records", len(records)).Dur("duration", dur).Msg("synthetic records generated")
	return &Result{Records: records, Source: config.SourceSynthetic, UsedFallback: src != nil, Duration: dur}
}

// NewSource builds the Source selected by cfg. The synthetic kind has no
// external source and returns nil.
func NewSource(cfg config.SourceConfig) (Source, error) {
	switch cfg.Kind {
	case config.SourceSynthetic:
		return nil, nil
	case config.SourceParquet:
		return &ParquetSource{Path: cfg.Path}, nil
	case config.SourceDICOM:
		return &DICOMSource{Root: cfg.Path}, nil
	case config.SourceHub:
		return NewHubSource(cfg.BaseURL, cfg.Dataset, cfg.Split), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}
