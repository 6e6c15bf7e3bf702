package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/hed1ad/netsight/pkg/traffic"
)

// ServerConfig configures the dashboard HTTP API.
type ServerConfig struct {
	Addr     string
	Defaults Params
}

// DefaultServerConfig returns the standard listen address and cycle params.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:     ":8080",
		Defaults: DefaultParams(),
	}
}

// Server exposes snapshots over HTTP. Every request triggers a fresh cycle;
// renders are serialized so only one cycle is in flight at a time.
type Server struct {
	pipeline *Pipeline
	defaults Params
	registry *prometheus.Registry

	renderMu sync.Mutex
	server   *http.Server
}

// NewServer wires a pipeline to the HTTP API and a metrics registry.
func NewServer(cfg ServerConfig, opts ...PipelineOption) *Server {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics("netsight", registry)

	opts = append(opts, WithMetrics(metrics))

	s := &Server{
		pipeline: NewPipeline(opts...),
		defaults: cfg.Defaults.Clamped(),
		registry: registry,
	}

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/anomalies", s.handleAnomalies)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// Start begins serving until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("Dashboard API listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.refresh(r)
	if snap == nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// Degraded snapshots still render; the payload carries the flag.
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	snap, err := s.refresh(r)
	if snap == nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if snap.Degraded {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	writeJSON(w, http.StatusOK, anomalyReport{
		Params:       snap.Params,
		AnomalyCount: snap.AnomalyCount,
		AnomalyRate:  snap.AnomalyRate,
		Anomalies:    snap.Anomalies,
	})
}

// anomalyReport is the /api/anomalies payload.
type anomalyReport struct {
	Params       Params           `json:"params"`
	AnomalyCount int              `json:"anomaly_count"`
	AnomalyRate  float64          `json:"anomaly_rate"`
	Anomalies    []traffic.Record `json:"anomalies"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// refresh parses per-request parameter overrides and runs one cycle.
func (s *Server) refresh(r *http.Request) (*Snapshot, error) {
	params := s.defaults
	q := r.URL.Query()

	if v := q.Get("samples"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.SampleSize = n
		}
	}
	if v := q.Get("contamination"); v != "" {
		if c, err := strconv.ParseFloat(v, 64); err == nil {
			params.Contamination = c
		}
	}
	if v := q.Get("seed"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			params.Seed = seed
		}
	}

	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	return s.pipeline.Refresh(params)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Response encoding failed")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
