// Package server provides the HTTP server that exposes the evaluation API.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/asmuvera/muvera-eval/internal/evaluation"
	"github.com/asmuvera/muvera-eval/internal/metrics"
	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
	"github.com/asmuvera/muvera-eval/internal/pkg/middleware"
)

// Server is the HTTP server that wires the evaluation API together.
type Server struct {
	cfg        Config
	deps       Deps
	log        *logger.Logger
	httpServer *http.Server
	limiter    *middleware.RateLimiter
	handler    http.Handler

	stopCollector context.CancelFunc

	mu      sync.RWMutex
	started bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout. Evaluations run inside the
	// request, so this bounds the longest run the API accepts.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration

	// RateLimit is the per-client request rate. 0 disables limiting.
	RateLimit float64

	// RateBurst is the per-client burst size.
	RateBurst int

	// CollectInterval is how often engine health is refreshed.
	CollectInterval time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8090,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		RateBurst:       10,
		CollectInterval: 15 * time.Second,
	}
}

// Deps are the services the server exposes.
type Deps struct {
	// Evaluation serves /v1/evaluation/*. Required.
	Evaluation *evaluation.Handler

	// Metrics serves /metrics and records HTTP traffic. May be nil.
	Metrics *metrics.Metrics

	// Collector refreshes engine gauges in the background. May be nil.
	Collector *metrics.Collector

	// Closers are closed in order on Stop.
	Closers []io.Closer
}

// New creates a new server.
func New(cfg Config, deps Deps, log *logger.Logger) (*Server, error) {
	if deps.Evaluation == nil {
		return nil, fmt.Errorf("evaluation handler is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultConfig().Port
	}
	if cfg.CollectInterval <= 0 {
		cfg.CollectInterval = DefaultConfig().CollectInterval
	}
	if log == nil {
		log = logger.Default()
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  log,
	}
	if cfg.RateLimit > 0 {
		rlCfg := middleware.DefaultRateLimiterConfig()
		rlCfg.RequestsPerSecond = cfg.RateLimit
		if cfg.RateBurst > 0 {
			rlCfg.Burst = cfg.RateBurst
		}
		s.limiter = middleware.NewRateLimiter(rlCfg)
	}
	s.handler = s.setupRoutes()
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves HTTP on ln and blocks until the server stops.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true

	if s.deps.Collector != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopCollector = cancel
		go s.deps.Collector.Start(ctx, s.cfg.CollectInterval)
	}

	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}

	if s.stopCollector != nil {
		s.stopCollector()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	for _, c := range s.deps.Closers {
		if err := c.Close(); err != nil {
			s.log.Warn("Close error", "error", err)
		}
	}

	s.started = false
	s.log.Info("Server stopped")

	return nil
}

// setupRoutes configures all HTTP routes and middleware.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
	s.deps.Evaluation.RegisterRoutes(mux)

	var handler http.Handler = mux
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	if s.deps.Metrics != nil {
		handler = metrics.HTTPMiddleware(s.deps.Metrics, handler)
	}
	return withLogging(handler, s.log)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.cfg.Version,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "muvera-eval",
		"version": s.cfg.Version,
		"endpoints": []string{
			"POST /v1/evaluation/evaluate",
			"POST /v1/evaluation/judgments",
			"GET /v1/evaluation/strategies",
			"GET /v1/evaluation/runs",
			"GET /v1/evaluation/runs/{id}",
			"GET /healthz",
			"GET /metrics",
		},
	})
}

// withLogging tags every request with an id and logs its outcome.
func withLogging(handler http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(wrapped, r)

		log.Debug("HTTP request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// GenerateRequestID generates a short unique request ID.
func GenerateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
