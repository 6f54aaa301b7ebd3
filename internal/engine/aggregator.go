package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FrameSource is the frame store adapter consumed by the engine. One refresh
// issues exactly one call to each method regardless of catalog size; reads are
// treated as fallible and retried by the caller, not here.
type FrameSource interface {
	Lights(ctx context.Context) ([]Frame, error)
	Calibration(ctx context.Context) ([]Frame, error)
}

// Diagnostics counts the data-quality conditions of one run. These are never
// fatal; affected frames are excluded from the computation and surfaced here.
type Diagnostics struct {
	UnassignableLights  int `json:"unassignable_lights"`
	UnusableCalibration int `json:"unusable_calibration"`
}

// Summary aggregates session statuses across a result set.
type Summary struct {
	Total               int     `json:"total"`
	Complete            int     `json:"complete"`
	CompleteWithMasters int     `json:"complete_with_masters"`
	Partial             int     `json:"partial"`
	Missing             int     `json:"missing"`
	CompletionRate      float64 `json:"completion_rate"` // percent
}

// Result is the atomically-delivered outcome of one aggregation run.
type Result struct {
	RunID       string      `json:"run_id"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	Sessions    []Session   `json:"sessions"`
	Diagnostics Diagnostics `json:"diagnostics"`
	Summary     Summary     `json:"summary"`
	ColdScan    bool        `json:"cold_scan"`
}

// Progress is a one-way notification published while a run is in flight.
type Progress struct {
	RunID     string `json:"run_id"`
	Stage     string `json:"stage"` // loading, matching, done, failed
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Err       string `json:"error,omitempty"`
}

// Options tunes one aggregation pass.
type Options struct {
	// ColdScanThreshold switches matching to the direct-scan path when the
	// calibration catalog holds fewer frames than this. Zero means always use
	// the cache.
	ColdScanThreshold int
}

// Aggregate runs session detection, cache building, matching, scoring and
// recommendation generation as one sequential pass. progress may be nil.
// Cancellation is checked between session iterations; a cancelled run returns
// ctx.Err() and its partial results must be discarded by the caller.
func Aggregate(ctx context.Context, src FrameSource, m *Matcher, opts Options, progress func(Progress)) (*Result, error) {
	notify := func(p Progress) {
		if progress != nil {
			progress(p)
		}
	}

	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	notify(Progress{RunID: res.RunID, Stage: "loading"})
	lights, err := src.Lights(ctx)
	if err != nil {
		return nil, fmt.Errorf("query light frames: %w", err)
	}
	cals, err := src.Calibration(ctx)
	if err != nil {
		return nil, fmt.Errorf("query calibration frames: %w", err)
	}

	sessions, unassignable := DetectSessions(lights)
	res.Diagnostics.UnassignableLights = unassignable

	cache := BuildCache(cals)
	res.Diagnostics.UnusableCalibration = cache.Unusable
	res.ColdScan = opts.ColdScanThreshold > 0 && len(cals) < opts.ColdScanThreshold

	for i := range sessions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := &sessions[i]
		for _, t := range CalibrationTypes {
			if res.ColdScan {
				s.setMatch(t, m.MatchCold(s, t, cals))
			} else {
				s.setMatch(t, m.MatchCached(s, t, cache))
			}
		}
		s.Status = Classify(s.Darks, s.Bias, s.Flats)
		s.Recommendations = Recommend(s)
		notify(Progress{RunID: res.RunID, Stage: "matching", Processed: i + 1, Total: len(sessions)})
	}

	res.Sessions = sessions
	res.Summary = summarize(sessions)
	res.FinishedAt = time.Now().UTC()
	return res, nil
}

func summarize(sessions []Session) Summary {
	sum := Summary{Total: len(sessions)}
	for i := range sessions {
		switch sessions[i].Status {
		case StatusComplete:
			sum.Complete++
		case StatusCompleteWithMasters:
			sum.Complete++
			sum.CompleteWithMasters++
		case StatusPartial:
			sum.Partial++
		case StatusMissing:
			sum.Missing++
		}
	}
	if sum.Total > 0 {
		sum.CompletionRate = float64(sum.Complete) / float64(sum.Total) * 100
	}
	return sum
}

// Aggregator orchestrates aggregation runs off the interactive path. At most
// one run is current per Aggregator: a new refresh cancels the in-flight one,
// whose partial results are discarded and never merged. The last completed
// result stays available through failed refreshes.
type Aggregator struct {
	source  FrameSource
	matcher *Matcher
	opts    Options
	log     *slog.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	runID     string
	latest    *Result
	subs      map[int]chan Progress
	nextSubID int
	wg        sync.WaitGroup
}

// NewAggregator wires the background controller.
func NewAggregator(src FrameSource, m *Matcher, opts Options, log *slog.Logger) *Aggregator {
	return &Aggregator{
		source:  src,
		matcher: m,
		opts:    opts,
		log:     log,
		subs:    make(map[int]chan Progress),
	}
}

// Latest returns the most recent completed result, or nil before the first
// successful run.
func (a *Aggregator) Latest() *Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

// Refresh starts a new aggregation run in the background, superseding and
// cancelling any run in flight. It returns the new run's ID immediately.
func (a *Aggregator) Refresh(ctx context.Context) string {
	ctx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.cancel = cancel
	runID := uuid.NewString()
	a.runID = runID
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		a.run(ctx, runID)
	}()
	return runID
}

func (a *Aggregator) run(ctx context.Context, runID string) {
	start := time.Now()
	res, err := Aggregate(ctx, a.source, a.matcher, a.opts, func(p Progress) {
		p.RunID = runID
		a.broadcast(p)
	})
	if err != nil {
		if ctx.Err() != nil {
			// Superseded by a newer refresh; discard without reporting.
			a.log.Debug("aggregation run cancelled", "run_id", runID)
			return
		}
		a.log.Error("aggregation run failed", "run_id", runID, "error", err)
		a.broadcast(Progress{RunID: runID, Stage: "failed", Err: err.Error()})
		return
	}
	res.RunID = runID

	a.mu.Lock()
	superseded := a.runID != runID
	if !superseded {
		a.latest = res
	}
	a.mu.Unlock()
	if superseded {
		return
	}

	a.log.Info("aggregation run complete",
		"run_id", runID,
		"sessions", res.Summary.Total,
		"complete", res.Summary.Complete,
		"unassignable_lights", res.Diagnostics.UnassignableLights,
		"unusable_calibration", res.Diagnostics.UnusableCalibration,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	a.broadcast(Progress{RunID: runID, Stage: "done", Processed: res.Summary.Total, Total: res.Summary.Total})
}

// Subscribe returns a channel of progress notifications and an unsubscribe
// function. Slow subscribers drop notifications rather than stalling a run.
func (a *Aggregator) Subscribe() (<-chan Progress, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextSubID
	a.nextSubID++
	ch := make(chan Progress, 16)
	a.subs[id] = ch
	unsub := func() {
		a.mu.Lock()
		if c, ok := a.subs[id]; ok {
			close(c)
			delete(a.subs, id)
		}
		a.mu.Unlock()
	}
	return ch, unsub
}

func (a *Aggregator) broadcast(p Progress) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, ch := range a.subs {
		select {
		case ch <- p:
		default:
			a.log.Warn("progress channel full", "subscriber", id, "run_id", p.RunID)
		}
	}
}

// Stop cancels any in-flight run and waits for it to exit.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()
	a.wg.Wait()

	a.mu.Lock()
	for id, ch := range a.subs {
		close(ch)
		delete(a.subs, id)
	}
	a.mu.Unlock()
}
