package main

import (
	"fmt"
	"os"
	"path/filepath"

	"astrocat/internal/catalog"
	"astrocat/internal/cli"
	"astrocat/internal/config"
	"astrocat/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.Setup(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Paths.DatabasePath), 0755); err != nil {
		log.Error("failed to create catalog directory", "error", err)
		os.Exit(1)
	}

	store, err := catalog.New(cfg.Paths.DatabasePath)
	if err != nil {
		log.Error("failed to open catalog", "path", cfg.Paths.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	rootCmd := cli.NewRootCmd(cfg, log, store)
	if err := rootCmd.Execute(); err != nil {
		log.Error("command failed", "error", err)
		os.Exit(1)
	}
}
