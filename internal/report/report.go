// Package report flattens an aggregation result into a human-readable text
// report suitable for export alongside stacking software.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"astrocat/internal/engine"
)

const rule = 80

// Write renders the session calibration report to w.
func Write(w io.Writer, res *engine.Result) error {
	bw := &errWriter{w: w}

	bw.line(strings.Repeat("=", rule))
	bw.line("ASTROCAT - SESSION CALIBRATION REPORT")
	bw.line(strings.Repeat("=", rule))
	bw.line("")
	bw.linef("Generated: %s", time.Now().Format("2006-01-02 15:04:05"))
	bw.linef("Run: %s", res.RunID)
	bw.linef("Total Sessions: %d", res.Summary.Total)
	if res.Diagnostics.UnassignableLights > 0 || res.Diagnostics.UnusableCalibration > 0 {
		bw.linef("Data quality: %d unassignable light frames, %d unusable calibration frames",
			res.Diagnostics.UnassignableLights, res.Diagnostics.UnusableCalibration)
	}
	bw.line("")

	for i := range res.Sessions {
		writeSession(bw, &res.Sessions[i])
	}

	bw.line(strings.Repeat("=", rule))
	bw.line("SUMMARY")
	bw.line(strings.Repeat("=", rule))
	bw.linef("Complete Sessions: %d (%d with masters)", res.Summary.Complete, res.Summary.CompleteWithMasters)
	bw.linef("Partial Sessions: %d", res.Summary.Partial)
	bw.linef("Missing Calibration: %d", res.Summary.Missing)
	if res.Summary.Total > 0 {
		bw.linef("Completion Rate: %.1f%%", res.Summary.CompletionRate)
	}
	return bw.err
}

func writeSession(bw *errWriter, s *engine.Session) {
	bw.line(strings.Repeat("-", rule))
	bw.linef("Session: %s - %s - %s", s.Date,
		displayStr(s.Object, "Unknown Object"), displayStr(s.Filter, "No Filter"))
	if s.Instrument != nil {
		bw.linef("Instrument: %s", *s.Instrument)
	}
	bw.linef("Status: %s", s.Status)
	bw.linef("Light Frames: %d | Exposure: %s | Temp: %s | Binning: %dx%d",
		s.LightFrames, displayF64(s.AvgExposure, "%.1fs"), displayF64(s.AvgTemperature, "%.1f°C"),
		s.BinX, s.BinY)
	bw.line("")

	bw.linef("  Darks (%s): %s", displayF64(s.AvgExposure, "%.1fs"), matchLine(s.Darks))
	bw.linef("  Bias: %s", matchLine(s.Bias))
	bw.linef("  Flats (%s): %s", displayStr(s.Filter, "No Filter"), matchLine(s.Flats))

	if len(s.Recommendations) > 0 && !s.Status.IsComplete() {
		bw.line("")
		bw.line("  Recommendations:")
		for _, rec := range s.Recommendations {
			bw.linef("    - %s", rec)
		}
	}
	bw.line("")
}

func matchLine(r engine.MatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d frames", r.Count)
	if r.Masters > 0 {
		fmt.Fprintf(&b, " + %d master(s)", r.Masters)
	}
	fmt.Fprintf(&b, " (Quality: %d%%)", r.QualityScore)
	return b.String()
}

// Export writes the report to a file at path.
func Export(path string, res *engine.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	if err := Write(f, res); err != nil {
		return err
	}
	return f.Close()
}

func displayStr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func displayF64(p *float64, format string) string {
	if p == nil {
		return "N/A"
	}
	return fmt.Sprintf(format, *p)
}

// errWriter accumulates the first write error so formatting stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) line(s string) {
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s+"\n")
}

func (e *errWriter) linef(format string, args ...any) {
	e.line(fmt.Sprintf(format, args...))
}
