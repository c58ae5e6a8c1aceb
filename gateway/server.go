package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/c360/metaquery/bridge"
	mqerrors "github.com/c360/metaquery/errors"
	"github.com/c360/metaquery/health"
	"github.com/c360/metaquery/metric"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records request outcomes and durations.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHealthMonitor serves the monitor's aggregate status on /health.
func WithHealthMonitor(monitor *health.Monitor) Option {
	return func(s *Server) {
		if monitor != nil {
			s.health = monitor
		}
	}
}

// WithTLSConfig serves HTTPS with the given config.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Server) {
		s.tlsConfig = cfg
	}
}

// Server exposes the bridge over HTTP. Every query answer, including a
// malformed request, is an envelope with status 200; only transport-level
// refusals (method, rate limit) use other statuses.
type Server struct {
	config  Config
	bridge  *bridge.Bridge
	logger  *slog.Logger
	metrics *metric.Metrics
	health  *health.Monitor
	limiter *rateLimiter
	handler http.Handler

	tlsConfig *tls.Config

	// Lifecycle
	mu         sync.RWMutex
	running    bool
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates the gateway and builds its routes.
func NewServer(config Config, b *bridge.Bridge, opts ...Option) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, mqerrors.WrapInvalid(err, "Server", "NewServer", "config validation")
	}
	if b == nil {
		return nil, mqerrors.WrapFatal(errors.New("bridge is nil"), "Server", "NewServer",
			"bridge is required")
	}

	s := &Server{
		config: config,
		bridge: b,
		logger: slog.Default(),
		health: health.NewMonitor(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "gateway")
	if config.RateLimit.Enabled {
		s.limiter = newRateLimiter(config.RateLimit)
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)

	var query http.Handler = http.HandlerFunc(s.handleQuery)
	if s.limiter != nil {
		query = s.limiter.middleware(query)
	}
	mux.Handle(s.config.Path, query)

	var handler http.Handler = mux
	if s.config.Compression {
		handler = gzhttp.GzipHandler(handler)
	}
	if s.config.EnableCORS {
		handler = corsMiddleware(s.config.CORSOrigins, handler)
	}
	return requestIDMiddleware(handler)
}

// Handler returns the gateway's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the bind address and serves until ctx is cancelled, then
// shuts down gracefully. ready, if non-nil, is closed once the listener is
// bound.
func (s *Server) Start(ctx context.Context, ready chan<- struct{}) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return mqerrors.WrapFatal(mqerrors.ErrAlreadyStarted, "Server", "Start", "server already running")
	}

	ln, err := net.Listen("tcp", s.config.BindAddress)
	if err != nil {
		s.mu.Unlock()
		return mqerrors.WrapFatal(err, "Server", "Start", "listen on "+s.config.BindAddress)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.Timeout(),
		WriteTimeout:      s.config.Timeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.httpServer = server
	s.listener = ln
	s.running = true
	s.mu.Unlock()

	if s.limiter != nil {
		sweepCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go s.limiter.run(sweepCtx)
	}

	s.logger.Info("Server starting",
		"address", ln.Addr().String(),
		"path", s.config.Path,
		"tls", s.tlsConfig != nil,
		"timeout", s.config.Timeout())
	if ready != nil {
		close(ready)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Server context cancelled, shutting down")
		return s.Stop(30 * time.Second)

	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return mqerrors.WrapFatal(err, "Server", "Start", "HTTP server failed")
	}
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	server := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Server stopping")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server gracefully", "error", err)
		return mqerrors.WrapTransient(err, "Server", "Stop", "graceful shutdown failed")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Server stopped")
	return nil
}

// Addr returns the bound address while running, or the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.BindAddress
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeEnvelope(w, http.StatusMethodNotAllowed, bridge.ErrorEnvelope("method not allowed: use POST"))
		return
	}

	env := s.execute(r)
	if s.metrics != nil {
		s.metrics.RecordRequest(env.Outcome(), time.Since(start))
	}
	writeEnvelope(w, http.StatusOK, env)
}

func (s *Server) execute(r *http.Request) bridge.Envelope {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, s.config.MaxRequestSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return bridge.ErrorEnvelope("request body exceeds maximum size")
		}
		return bridge.ErrorEnvelope("failed to read request body")
	}

	req, err := bridge.ParseRequest(body)
	if err != nil {
		s.logger.Debug("Rejected malformed request",
			"error", err, "request_id", bridge.RequestID(r.Context()))
		return bridge.ErrorEnvelope(err.Error())
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout())
	defer cancel()
	return s.bridge.ExecuteRequest(ctx, req)
}

// handleHealth probes the dependencies. Degraded still answers 200 so that
// load balancers keep routing while a breaker probes the store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := s.health.Check(ctx, "metaquery")
	code := http.StatusOK
	if status.IsUnhealthy() {
		s.logger.Warn("Health check failed", "message", status.Message)
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func writeEnvelope(w http.ResponseWriter, status int, env bridge.Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		body = []byte(`{"errors":[{"message":"failed to encode response"}]}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
