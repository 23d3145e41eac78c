package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/radwarehouse/internal/db"
	"github.com/gyeh/radwarehouse/internal/exitcode"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, log := setup()

	pool := connect(ctx, log)
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, log); err != nil {
		log.Error().Err(err).Msg("migration failed")
		os.Exit(exitcode.TransformError)
	}

	log.Info().Msg("all migrations applied successfully")
	return nil
}
