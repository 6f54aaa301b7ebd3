package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"astrocat/internal/catalog"
	"astrocat/internal/config"
	"astrocat/internal/engine"
	"astrocat/internal/report"
	"astrocat/internal/server"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *catalog.Store) *cobra.Command {
	root := NewRoot(cfg, log, store)

	rootCmd := &cobra.Command{
		Use:   "astrocat",
		Short: "Astrocat matches calibration frames to imaging sessions",
		Long: `Astrocat groups light frames from a FITS catalog into imaging sessions,
matches dark, bias and flat frames against each session within configurable
tolerances, and scores calibration completeness.`,
	}

	rootCmd.AddCommand(newSessionsCmd(root))
	rootCmd.AddCommand(newReportCmd(root))
	rootCmd.AddCommand(newCatalogCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func newSessionsCmd(root *Root) *cobra.Command {
	var (
		status string
		from   string
		to     string
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List imaging sessions with calibration match status",
		Long: `Detect imaging sessions from the catalog and match calibration frames
against each one.

Examples:
  # All sessions
  astrocat sessions

  # Only sessions with incomplete calibration
  astrocat sessions --status partial

  # Restrict to a date range
  astrocat sessions --from 2025-01-01 --to 2025-03-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := root.aggregate(cmd.Context(), from, to)
			if err != nil {
				return err
			}

			sessions := res.Sessions
			if status != "" {
				filtered := make([]engine.Session, 0, len(sessions))
				for _, s := range sessions {
					if strings.EqualFold(string(s.Status), status) {
						filtered = append(filtered, s)
					}
				}
				sessions = filtered
			}

			printSessions(sessions)
			fmt.Printf("\n%d sessions, %d complete (%.1f%%)\n",
				res.Summary.Total, res.Summary.Complete, res.Summary.CompletionRate)
			if res.Diagnostics.UnassignableLights > 0 {
				fmt.Printf("%d light frames without a session date were skipped\n",
					res.Diagnostics.UnassignableLights)
			}
			if res.Diagnostics.UnusableCalibration > 0 {
				fmt.Printf("%d calibration frames missing required metadata were skipped\n",
					res.Diagnostics.UnusableCalibration)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (Missing|Partial|Complete|CompleteWithMasters)")
	cmd.Flags().StringVar(&from, "from", "", "earliest session date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "latest session date (YYYY-MM-DD)")

	return cmd
}

func newReportCmd(root *Root) *cobra.Command {
	var (
		output string
		from   string
		to     string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export a text calibration report",
		Long: `Run a full aggregation pass and export the session calibration report.

Examples:
  # Write to the configured report path
  astrocat report

  # Write to stdout
  astrocat report --output -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := root.aggregate(cmd.Context(), from, to)
			if err != nil {
				return err
			}

			if output == "" {
				output = root.cfg.Paths.ReportPath
			}
			if output == "-" {
				return report.Write(os.Stdout, res)
			}
			if err := report.Export(output, res); err != nil {
				return err
			}
			fmt.Printf("Report written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path, or - for stdout (default: configured report path)")
	cmd.Flags().StringVar(&from, "from", "", "earliest session date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "latest session date (YYYY-MM-DD)")

	return cmd
}

func newCatalogCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Show frame counts in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := root.store.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Lights:  %d\n", counts.Lights)
			fmt.Printf("Darks:   %d\n", counts.Darks)
			fmt.Printf("Bias:    %d\n", counts.Bias)
			fmt.Printf("Flats:   %d\n", counts.Flats)
			fmt.Printf("Masters: %d\n", counts.Masters)
			return nil
		},
	}
}

func newServeCmd(root *Root) *cobra.Command {
	var (
		addr    string
		noWatch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start an HTTP server exposing sessions, diagnostics and live refresh
progress. When catalog watching is enabled the server re-runs matching
automatically after the database changes on disk.

Examples:
  astrocat serve --addr :8080
  astrocat serve --no-watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = root.cfg.Server.Addr
			}

			agg := engine.NewAggregator(root.store, root.matcher(), root.options(), root.log)

			var watcher *catalog.Watcher
			if root.cfg.Server.WatchCatalog && !noWatch {
				var err error
				watcher, err = catalog.NewWatcher(root.cfg.Paths.DatabasePath, 2*time.Second, func() {
					agg.Refresh(ctx)
				}, root.log)
				if err != nil {
					root.log.Warn("catalog watcher unavailable", "error", err)
					watcher = nil
				}
			}

			srv := server.NewServer(addr, root.store, agg, watcher, root.log)

			root.log.Info("server ready",
				"addr", addr,
				"endpoints", []string{"/healthz", "/api/sessions", "/api/summary", "/api/refresh", "/api/report", "/stream", "/ws"},
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "server address (host:port), defaults to configured address")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable automatic refresh on catalog changes")

	return cmd
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long:  "Show or validate astrocat configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Configuration:\n\n")
			fmt.Printf("Database Path: %s\n", root.cfg.Paths.DatabasePath)
			fmt.Printf("Report Path: %s\n", root.cfg.Paths.ReportPath)
			fmt.Printf("Dark Temp Tolerance: %.1f C\n", root.cfg.Matching.DarkTempTolerance)
			fmt.Printf("Bias Temp Tolerance: %.1f C\n", root.cfg.Matching.BiasTempTolerance)
			fmt.Printf("Flat Temp Tolerance: %.1f C\n", root.cfg.Matching.FlatTempTolerance)
			fmt.Printf("Exposure Tolerance: %.2f s\n", root.cfg.Matching.ExposureTolerance)
			fmt.Printf("Include Masters: %t\n", root.cfg.Matching.IncludeMasters)
			fmt.Printf("Cold Scan Threshold: %d\n", root.cfg.Matching.ColdScanThreshold)
			fmt.Printf("Server Address: %s\n", root.cfg.Server.Addr)
			fmt.Printf("Watch Catalog: %t\n", root.cfg.Server.WatchCatalog)
			fmt.Printf("Log Level: %s\n", root.cfg.Logging.Level)
			fmt.Printf("Log Format: %s\n", root.cfg.Logging.Format)
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.cfg.Validate(); err != nil {
				return err
			}
			root.log.Info("configuration validation", "status", "valid")
			fmt.Println("Configuration is valid")
			return nil
		},
	}

	cmd.AddCommand(showCmd, validateCmd)
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("Astrocat v1.0.0")
		},
	}
}
