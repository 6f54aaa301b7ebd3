// Package cli implements the astrocat command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"astrocat/internal/catalog"
	"astrocat/internal/config"
	"astrocat/internal/engine"
)

// Root wires CLI commands to the catalog and the matching engine.
type Root struct {
	cfg   *config.Config
	log   *slog.Logger
	store *catalog.Store
}

// NewRoot constructs the shared command state.
func NewRoot(cfg *config.Config, logger *slog.Logger, store *catalog.Store) *Root {
	return &Root{
		cfg:   cfg,
		log:   logger,
		store: store,
	}
}

func (r *Root) matcher() *engine.Matcher {
	m := engine.NewMatcher(engine.Tolerances{
		DarkTemp: r.cfg.Matching.DarkTempTolerance,
		BiasTemp: r.cfg.Matching.BiasTempTolerance,
		FlatTemp: r.cfg.Matching.FlatTempTolerance,
		Exposure: r.cfg.Matching.ExposureTolerance,
	})
	m.IncludeMasters = r.cfg.Matching.IncludeMasters
	return m
}

func (r *Root) options() engine.Options {
	return engine.Options{ColdScanThreshold: r.cfg.Matching.ColdScanThreshold}
}

// aggregate runs one synchronous aggregation pass against the store, scoped to
// the optional session-date range.
func (r *Root) aggregate(ctx context.Context, from, to string) (*engine.Result, error) {
	src := r.store.WithRange(from, to)
	res, err := engine.Aggregate(ctx, src, r.matcher(), r.options(), nil)
	if err != nil {
		return nil, err
	}
	r.log.Info("aggregation complete",
		"run_id", res.RunID,
		"sessions", res.Summary.Total,
		"complete", res.Summary.Complete,
		"cold_scan", res.ColdScan,
	)
	return res, nil
}

// printSessions renders sessions as an aligned table on stdout.
func printSessions(sessions []engine.Session) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tOBJECT\tFILTER\tLIGHTS\tDARKS\tBIAS\tFLATS\tSTATUS")
	for i := range sessions {
		s := &sessions[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			s.Date,
			orDefault(s.Object, "Unknown Object"),
			orDefault(s.Filter, "No Filter"),
			s.LightFrames,
			matchCell(s.Darks),
			matchCell(s.Bias),
			matchCell(s.Flats),
			s.Status,
		)
	}
	w.Flush()
}

func matchCell(m engine.MatchResult) string {
	if m.HasMaster {
		return fmt.Sprintf("%d (M, %d%%)", m.Count, m.QualityScore)
	}
	return fmt.Sprintf("%d (%d%%)", m.Count, m.QualityScore)
}

func orDefault(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
