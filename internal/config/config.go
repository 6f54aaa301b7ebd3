package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const defaultConfigPath = "~/.config/astrocat/config.json"

// Config holds user-editable settings for the catalog engine.
type Config struct {
	Matching Matching `json:"matching"`
	Logging  Logging  `json:"logging"`
	Paths    Paths    `json:"paths"`
	Server   Server   `json:"server"`
}

// Matching captures calibration matching tolerances and execution preferences.
type Matching struct {
	DarkTempTolerance float64 `json:"dark_temp_tolerance"` // °C
	BiasTempTolerance float64 `json:"bias_temp_tolerance"` // °C
	FlatTempTolerance float64 `json:"flat_temp_tolerance"` // °C
	ExposureTolerance float64 `json:"exposure_tolerance"`  // seconds
	IncludeMasters    bool    `json:"include_masters"`
	// ColdScanThreshold selects the direct-scan matching path for catalogs
	// with fewer calibration frames than this; 0 always uses the cache.
	ColdScanThreshold int `json:"cold_scan_threshold"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // text, json
	FileOutput bool   `json:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir"`     // Directory for log files
}

// Paths configures catalog locations.
type Paths struct {
	DatabasePath string `json:"database_path"`
	ReportPath   string `json:"report_path"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `json:"addr"`
	// WatchCatalog triggers a refresh when the database file changes on disk.
	WatchCatalog bool `json:"watch_catalog"`
}

// Load reads configuration from disk, falling back to sensible defaults.
func Load() (*Config, error) {
	cfg := Default()

	configPath := os.Getenv("ASTROCAT_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", expanded, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Matching: Matching{
			DarkTempTolerance: 1.0,
			BiasTempTolerance: 1.0,
			FlatTempTolerance: 3.0,
			ExposureTolerance: 0.1,
			IncludeMasters:    true,
			ColdScanThreshold: 0,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Paths: Paths{
			DatabasePath: filepath.Join(home, ".local", "share", "astrocat", "catalog.db"),
			ReportPath:   "session_report.txt",
		},
		Server: Server{
			Addr:         ":8080",
			WatchCatalog: true,
		},
	}
}

// Validate rejects settings that would make matching meaningless.
func (c *Config) Validate() error {
	if c.Matching.DarkTempTolerance < 0 || c.Matching.BiasTempTolerance < 0 || c.Matching.FlatTempTolerance < 0 {
		return errors.New("temperature tolerances must not be negative")
	}
	if c.Matching.ExposureTolerance < 0 {
		return errors.New("exposure tolerance must not be negative")
	}
	if c.Matching.ColdScanThreshold < 0 {
		return errors.New("cold scan threshold must not be negative")
	}
	return nil
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
