// Package api serves the read-only presentation surface. Every handler
// reads from the recorder; nothing here touches scanner state directly.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"SignalScanner/internal/recorder"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const allTrades = 100000

// Server exposes positions, trades, signals, portfolio and health.
type Server struct {
	Recorder     recorder.Recorder
	Gatherer     prometheus.Gatherer
	StaleAfter   time.Duration
	FeedInterval time.Duration
	Now          func() time.Time

	log zerolog.Logger
}

func NewServer(rec recorder.Recorder, gatherer prometheus.Gatherer, staleAfter, feedInterval time.Duration, logger zerolog.Logger) *Server {
	return &Server{
		Recorder:     rec,
		Gatherer:     gatherer,
		StaleAfter:   staleAfter,
		FeedInterval: feedInterval,
		Now:          time.Now,
		log:          logger.With().Str("component", "api").Logger(),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/positions", s.handlePositions)
	mux.HandleFunc("GET /api/trades/open", s.handlePositions)
	mux.HandleFunc("GET /api/trades/closed", s.handleClosed)
	mux.HandleFunc("GET /api/trades/performance", s.handlePerformance)
	mux.HandleFunc("GET /api/signals", s.handleSignals)
	mux.HandleFunc("GET /api/portfolio", s.handlePortfolio)
	mux.HandleFunc("GET /ws", s.handleFeed)
	if s.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	return cors(mux)
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("api listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status     string                `json:"status"`
	LastScan   *time.Time            `json:"last_scan,omitempty"`
	AgeSeconds float64               `json:"age_seconds,omitempty"`
	StaleAfter float64               `json:"stale_after_seconds"`
	LastCycle  *recorder.CycleReport `json:"last_cycle,omitempty"`
}

// handleHealth reports online while the last completed cycle is younger
// than StaleAfter.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	last, err := s.Recorder.LastCycle(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	resp := healthResponse{Status: "offline", StaleAfter: s.StaleAfter.Seconds(), LastCycle: last}
	status := http.StatusServiceUnavailable
	if last != nil {
		age := s.Now().Sub(last.FinishedAt)
		resp.LastScan = &last.FinishedAt
		resp.AgeSeconds = age.Seconds()
		if age <= s.StaleAfter {
			resp.Status = "online"
			status = http.StatusOK
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.Recorder.OpenPositions(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(positions))
}

func (s *Server) handleClosed(w http.ResponseWriter, r *http.Request) {
	trades, err := s.Recorder.ClosedTrades(r.Context(), intParam(r, "limit", 100))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(trades))
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	trades, err := s.Recorder.ClosedTrades(r.Context(), allTrades)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(recorder.Summarize(trades)))
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	hours := intParam(r, "hours", 24)
	since := s.Now().Add(-time.Duration(hours) * time.Hour)
	signals, err := s.Recorder.RecentSignals(r.Context(), since, intParam(r, "limit", 50))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(signals))
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.Recorder.LoadPortfolio(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no portfolio recorded"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("read store")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func intParam(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
