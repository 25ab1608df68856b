package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server serves the Prometheus scrape endpoint for a Collector.
type Server struct {
	httpServer *http.Server
	log        *logrus.Logger
}

// NewServer builds (but does not start) an HTTP server exposing c's
// metrics at /metrics on addr.
func NewServer(addr string, c *Collector, log *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.Gatherer(), promhttp.HandlerOpts{}))

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		log:        log,
	}
}

// Start runs the metrics server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("telemetry: metrics server stopped unexpectedly")
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.httpServer.Close()
	}()
}
