package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/taskscope/internal/logging"
)

// DefaultPath is where the scrape handler is mounted.
const DefaultPath = "/metrics"

// Server serves the registry over HTTP for scraping.
type Server struct {
	server *http.Server
	logger *logging.Logger
}

// Handler returns the scrape handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve starts a scrape endpoint on addr. It returns once the listener is
// bound; serving continues in the background until Shutdown.
func (m *Metrics) Serve(addr string, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(DefaultPath, m.Handler())
	s := &Server{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.WithComponent("metrics"),
	}

	go func() {
		s.logger.Info("metrics listening", "address", ln.Addr().String(), "path", DefaultPath)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server error", "error", err.Error())
		}
	}()
	return s, nil
}

// Shutdown stops the server, waiting up to five seconds for open scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}
