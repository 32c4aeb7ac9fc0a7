package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// logger is the minimal capability Server needs, avoiding an import cycle
// back onto internal/logging.
type logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Server exposes the Prometheus exporter registered by Setup over HTTP, so
// an external scraper can pull algoengine_* metrics.
type Server struct {
	port   int
	logger logger
	srv    *http.Server
}

// NewServer returns a metrics server bound to port; logger may be nil.
func NewServer(port int, logger logger) *Server {
	return &Server{port: port, logger: logger}
}

// Start begins serving /metrics in a background goroutine.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	go func() {
		if s.logger != nil {
			s.logger.Info("starting prometheus metrics server", "port", s.port)
		}
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Error("metrics server failed", "error", err)
			}
		}
	}()
}

// Stop gracefully shuts the metrics server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
