package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyeh/radwarehouse/internal/exitcode"
	"github.com/gyeh/radwarehouse/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate synthetic patients, facilities and historical encounters",
	RunE:  runSeed,
}

var (
	seedPatients   int
	seedFacilities int
	seedRandom     uint64
)

func init() {
	f := seedCmd.Flags()
	f.IntVar(&seedPatients, "patients", cfg.Seed.Patients, "Number of patients to generate")
	f.IntVar(&seedFacilities, "facilities", cfg.Seed.Facilities, "Number of facilities to generate")
	f.Uint64Var(&seedRandom, "random-seed", cfg.Seed.RandomSeed, "Seed for reproducible data")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx, log := setup()

	f := cmd.Flags()
	if f.Changed("patients") {
		cfg.Seed.Patients = seedPatients
	}
	if f.Changed("facilities") {
		cfg.Seed.Facilities = seedFacilities
	}
	if f.Changed("random-seed") {
		cfg.Seed.RandomSeed = seedRandom
	}

	pool := connect(ctx, log)
	defer pool.Close()

	rng := rand.New(rand.NewPCG(cfg.Seed.RandomSeed, cfg.Seed.RandomSeed))
	res, err := seed.Run(ctx, pool, log, cfg.Seed, rng, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("seed failed")
		os.Exit(exitcode.TransformError)
	}

	fmt.Printf("Seed complete: %d patients, %d facilities, %d encounters, %d procedures, %d diagnoses (%.1fs)\n",
		res.Patients, res.Facilities, res.Encounters, res.Procedures, res.Diagnoses, res.Duration.Seconds())
	return nil
}
