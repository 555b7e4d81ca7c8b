package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/itsneelabh/cartshare/core"
)

const shutdownTimeout = 5 * time.Second

// Server exposes /metrics on its own listener.
type Server struct {
	server   *http.Server
	listener net.Listener
	logger   core.Logger
}

// Listen binds addr and returns a server ready to Serve. Binding early lets
// callers report the real address when addr uses port 0.
func (c *Collector) Listen(addr string, logger core.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	return &Server{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   core.ComponentLogger(logger, "metrics"),
	}, nil
}

// Addr is the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is done, then shuts the listener down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Serving metrics", map[string]interface{}{
			"address": s.Addr(),
		})
		errCh <- s.server.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
