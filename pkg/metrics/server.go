package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Server exposes /metrics and /health
type Server struct {
	metrics *Metrics
	server  *http.Server
	started time.Time
}

// NewServer creates a metrics server listening on addr
func NewServer(m *Metrics, addr string) *Server {
	mux := http.NewServeMux()
	s := &Server{
		metrics: m,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		started: time.Now(),
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", m.Handler())

	return s
}

// Handler returns the server's mux, mainly for tests
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start serves until Stop is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}
