package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PabloG6/medscan-intellibus/internal/config"
	"github.com/PabloG6/medscan-intellibus/internal/db"
	"github.com/PabloG6/medscan-intellibus/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "medscan",
	Short:         "MedScan AI diagnostic chat backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.LogMode)
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		defer log.Sync()

		store, err := db.Open(cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.AutoMigrateAll(); err != nil {
			return fmt.Errorf("auto migration failed: %w", err)
		}
		log.Info("Migration complete", "driver", store.Driver())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
