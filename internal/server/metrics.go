package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/teemow/busymirror/internal/instrumentation"
)

const (
	// DefaultMetricsAddr is the default address for the metrics server.
	DefaultMetricsAddr = ":9090"

	// DefaultHealthAddr is the default address for the health server.
	DefaultHealthAddr = ":8080"

	// DefaultMetricsReadTimeout is the default read timeout for the metrics server.
	DefaultMetricsReadTimeout = 10 * time.Second

	// DefaultMetricsWriteTimeout is the default write timeout for the metrics server.
	DefaultMetricsWriteTimeout = 10 * time.Second

	// DefaultMetricsIdleTimeout is the default idle timeout for the metrics server.
	DefaultMetricsIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful server shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// MetricsServerConfig holds configuration for the metrics server.
type MetricsServerConfig struct {
	// Addr is the address to bind the metrics server to (e.g., ":9090").
	Addr string

	// Path is the metrics path (default: "/metrics").
	Path string

	// InstrumentationProvider provides the Prometheus metrics handler.
	InstrumentationProvider *instrumentation.Provider

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// httpServer is the shared lifecycle of the metrics and health servers.
type httpServer struct {
	name    string
	addr    string
	handler http.Handler
	logger  *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Start listens and serves until Shutdown. It blocks; run it in a goroutine
// for non-blocking operation. Start returns http.ErrServerClosed after Shutdown.
func (s *httpServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s for %s server: %w", s.addr, s.name, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultMetricsReadTimeout,
		WriteTimeout:      DefaultMetricsWriteTimeout,
		IdleTimeout:       DefaultMetricsIdleTimeout,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("starting "+s.name+" server", "addr", ln.Addr().String())
	return srv.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *httpServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv != nil {
		s.logger.Info("shutting down " + s.name + " server")
		return srv.Shutdown(ctx)
	}
	return nil
}

// Addr returns the bound address once started, the configured one before.
func (s *httpServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Handler returns the server's handler.
func (s *httpServer) Handler() http.Handler {
	return s.handler
}

// MetricsServer serves Prometheus metrics on a dedicated port.
// This isolates metrics from the health probes.
type MetricsServer struct {
	httpServer
}

// NewMetricsServer creates a new metrics server with the given configuration.
// The server exposes the provider's registry for Prometheus scraping.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	if config.Addr == "" {
		config.Addr = DefaultMetricsAddr
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	if config.InstrumentationProvider == nil {
		return nil, fmt.Errorf("instrumentation provider is required for metrics server")
	}

	if !config.InstrumentationProvider.Enabled() {
		return nil, fmt.Errorf("instrumentation provider is not enabled")
	}

	metricsHandler := config.InstrumentationProvider.PrometheusHandler()
	if metricsHandler == nil {
		return nil, fmt.Errorf("instrumentation provider has no prometheus exporter")
	}

	mux := http.NewServeMux()
	mux.Handle(config.Path, metricsHandler)

	// Add a basic health check for the metrics server itself
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &MetricsServer{httpServer{
		name:    "metrics",
		addr:    config.Addr,
		handler: mux,
		logger:  config.Logger,
	}}, nil
}

// HealthServer serves the probe endpoints of a HealthChecker.
type HealthServer struct {
	httpServer
}

// NewHealthServer creates a health server on addr (default ":8080").
func NewHealthServer(addr string, checker *HealthChecker, logger *slog.Logger) (*HealthServer, error) {
	if checker == nil {
		return nil, fmt.Errorf("health checker is required for health server")
	}
	if addr == "" {
		addr = DefaultHealthAddr
	}
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	checker.RegisterHealthEndpoints(mux)

	return &HealthServer{httpServer{
		name:    "health",
		addr:    addr,
		handler: mux,
		logger:  logger,
	}}, nil
}
