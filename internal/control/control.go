// Package control serves the engine's operational HTTP surface:
// liveness (/healthz), Prometheus scraping (/metrics), and an
// out-of-band config re-read (/reload-config). It replaces the
// Dhan order-postback receiver, which has no home once live order
// routing is out of scope — the server shape (wrap http.Server,
// Start/Shutdown, background ListenAndServe) carries over.
package control

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Reloader re-reads the active trading configuration on demand.
type Reloader interface {
	Reload() error
}

// Config holds control-server settings.
type Config struct {
	Addr string // e.g. ":9090"
}

// Server is the engine's ops HTTP endpoint.
type Server struct {
	cfg      Config
	reloader Reloader
	logger   *zap.Logger
	srv      *http.Server
}

// NewServer builds a Server. It does not start listening until Start.
func NewServer(cfg Config, reloader Reloader, logger *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
	return &Server{cfg: cfg, reloader: reloader, logger: logger}
}

// Start begins serving in a background goroutine and returns
// immediately.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/reload-config", s.handleReloadConfig)

	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Warn("control: server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("control: listening", zap.String("addr", s.cfg.Addr))
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReloadConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.reloader.Reload(); err != nil {
		s.logger.Error("control: reload-config failed", zap.Error(err))
		http.Error(w, fmt.Sprintf("reload failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("reloaded"))
}
