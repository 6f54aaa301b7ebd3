// Package server exposes the session catalog over HTTP: a JSON API for query
// tools, an SSE stream and a websocket hub for live refresh progress.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"astrocat/internal/catalog"
	"astrocat/internal/engine"
	"astrocat/internal/report"
)

// Server wraps the HTTP server around the aggregation engine.
type Server struct {
	addr       string
	store      *catalog.Store
	aggregator *engine.Aggregator
	watcher    *catalog.Watcher
	hub        *Hub
	log        *slog.Logger
	server     *http.Server
}

// NewServer creates a server. watcher may be nil when catalog watching is
// disabled.
func NewServer(addr string, store *catalog.Store, agg *engine.Aggregator, watcher *catalog.Watcher, log *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		store:      store,
		aggregator: agg,
		watcher:    watcher,
		hub:        NewHub(log),
		log:        log,
	}
}

// Start runs the server until ctx is cancelled. An initial refresh is kicked
// off so the API has data as soon as the first run completes.
func (s *Server) Start(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			s.log.Error("failed to start catalog watcher", "error", err)
			return err
		}
	}

	go s.hub.Run(ctx)
	go s.relayProgress(ctx)

	s.aggregator.Refresh(ctx)

	r := mux.NewRouter()
	s.setupRoutes(r)

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")

		if s.watcher != nil {
			s.watcher.Stop()
		}
		s.aggregator.Stop()

		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/sessions", s.handleSessions).Methods("GET")
	r.HandleFunc("/api/summary", s.handleSummary).Methods("GET")
	r.HandleFunc("/api/diagnostics", s.handleDiagnostics).Methods("GET")
	r.HandleFunc("/api/catalog", s.handleCatalog).Methods("GET")
	r.HandleFunc("/api/refresh", s.handleRefresh).Methods("POST")
	r.HandleFunc("/api/report", s.handleReport).Methods("GET")
	r.HandleFunc("/stream", s.handleProgressStream).Methods("GET")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
}

// relayProgress feeds aggregation progress into the websocket hub.
func (s *Server) relayProgress(ctx context.Context) {
	ch, unsubscribe := s.aggregator.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(p)
			if err != nil {
				continue
			}
			s.hub.Broadcast(payload)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleSessions returns the sessions of the latest completed run, optionally
// filtered by ?status=. 503 until the first run finishes.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	res := s.aggregator.Latest()
	if res == nil {
		http.Error(w, "no aggregation result yet", http.StatusServiceUnavailable)
		return
	}

	sessions := res.Sessions
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]engine.Session, 0, len(sessions))
		for _, sess := range sessions {
			if strings.EqualFold(string(sess.Status), status) {
				filtered = append(filtered, sess)
			}
		}
		sessions = filtered
	}

	writeJSON(w, map[string]any{
		"run_id":   res.RunID,
		"sessions": sessions,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	res := s.aggregator.Latest()
	if res == nil {
		http.Error(w, "no aggregation result yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{
		"run_id":      res.RunID,
		"started_at":  res.StartedAt,
		"finished_at": res.FinishedAt,
		"cold_scan":   res.ColdScan,
		"summary":     res.Summary,
	})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	res := s.aggregator.Latest()
	if res == nil {
		http.Error(w, "no aggregation result yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, res.Diagnostics)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Count(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, counts)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	runID := s.aggregator.Refresh(context.Background())
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"run_id": runID})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	res := s.aggregator.Latest()
	if res == nil {
		http.Error(w, "no aggregation result yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := report.Write(w, res); err != nil {
		s.log.Warn("report stream interrupted", "error", err)
	}
}

func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ch, unsubscribe := s.aggregator.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-r.Context().Done():
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			payload, _ := json.Marshal(p)
			_, _ = w.Write([]byte("data: " + string(payload) + "\n\n"))
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
