package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sprintboard/internal/config"
	"sprintboard/internal/logger"
	"sprintboard/internal/storage/sqlite"
)

var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "sprintboard",
		Short:        "Sprint task board backend",
		Version:      Version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.Path(), "path to the YAML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads the config and opens the migrated store.
func bootstrap(component string) (*config.Config, *logger.Logger, *sqlite.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log := logger.New(cfg.Log.Env, component)

	store, err := sqlite.Open(cfg.Database.Path, log.Named("sqlite"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, log, store, nil
}
