// Package statusapi serves the coordinator's status snapshot and the
// Prometheus metrics over HTTP. It is read-only: operators change the
// session through channel flags, never through this API.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/coeftune/internal/coordinator"
	"github.com/Iron-Ham/coeftune/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// StatusFunc returns the latest coordinator snapshot.
type StatusFunc func() coordinator.Status

// Server is the status HTTP server.
type Server struct {
	addr    string
	status  StatusFunc
	log     *logging.Logger
	router  chi.Router
	started time.Time
}

// New builds the router. The listener is not opened until Run.
func New(addr string, status StatusFunc, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NopLogger()
	}
	s := &Server{
		addr:    addr,
		status:  status,
		log:     log.WithComponent("statusapi"),
		router:  chi.NewRouter(),
		started: time.Now(),
	}
	s.router.Use(middleware.Recoverer)
	s.router.Get("/healthz", s.healthz)
	s.router.Get("/status", s.handleStatus)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("status server shutdown error", "error", err)
		}
	}()

	s.log.Info("status server started", "addr", ln.Addr().String())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	st := s.status()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"state":      st.State,
		"connected":  st.Connected,
		"uptime_sec": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
