package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gyeh/radwarehouse/internal/config"
	"github.com/gyeh/radwarehouse/internal/exitcode"
	"github.com/gyeh/radwarehouse/internal/extract"
	"github.com/gyeh/radwarehouse/internal/normalize"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry-run extraction and coercion report (no writes)",
	RunE:  runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, log := setup()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	src, err := extract.NewSource(cfg.Source)
	if err != nil {
		log.Error().Err(err).Msg("invalid source")
		os.Exit(exitcode.UsageError)
	}

	var sha string
	if cfg.Source.Kind == config.SourceParquet || cfg.Source.Kind == config.SourceDICOM {
		if sha, err = normalize.SourceFingerprint(cfg.Source.Path); err != nil {
			log.Error().Err(err).Msg("failed to fingerprint source")
			os.Exit(exitcode.ValidationError)
		}
	}

	synth := extract.NewSynthesizer(rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), nil)
	res := extract.Extract(ctx, log, src, cfg.SampleSize, synth)

	var valid, rejected, nullAge, nullDate int
	seen := make(map[string]struct{}, len(res.Records))
	duplicates := 0
	for i, rec := range res.Records {
		staged, err := normalize.ToStagingRecord(rec, uuid.Nil, int64(i+1))
		if err != nil {
			rejected++
			log.Debug().Err(err).Msg("record would be rejected")
			continue
		}
		valid++
		if _, ok := seen[staged.ImageID]; ok {
			duplicates++
		}
		seen[staged.ImageID] = struct{}{}
		if staged.PatientAge == nil {
			nullAge++
		}
		if staged.StudyDate == nil {
			nullDate++
		}
	}

	fmt.Println("=== radwh plan ===")
	fmt.Printf("Source:        %s\n", res.Source)
	if res.UsedFallback {
		fmt.Printf("               (fallback: %s unavailable)\n", src.Name())
	}
	if sha != "" {
		fmt.Printf("SHA-256:       %s\n", sha)
	}
	fmt.Printf("Extracted:     %d records (%.1fs)\n", len(res.Records), res.Duration.Seconds())
	fmt.Printf("Valid:         %d\n", valid)
	fmt.Printf("Rejected:      %d\n", rejected)
	fmt.Printf("In-batch dups: %d\n", duplicates)
	fmt.Printf("NULL age:      %d\n", nullAge)
	fmt.Printf("NULL date:     %d\n", nullDate)

	return nil
}
