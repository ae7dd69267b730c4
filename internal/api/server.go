package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ddpager/pager-bridge/internal/alert"
	"github.com/ddpager/pager-bridge/internal/bridge"
	"github.com/ddpager/pager-bridge/internal/infrastructure/config"
	"github.com/ddpager/pager-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the orchestration surface the handlers call.
type Bridge interface {
	PublishAlert(ctx context.Context, deviceID string, body []byte) bridge.Result
	SendTestAlert(ctx context.Context, deviceID string, o alert.Overrides) bridge.Result
	RegisterDevice(ctx context.Context, reg bridge.Registration) bridge.Result
	DeviceStatus(ctx context.Context, deviceID string) (bridge.DeviceStatus, error)
}

// Transport reports the MQTT link state for /health and /setup.
type Transport interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Bridge    Bridge
	Transport Transport

	// DeviceID is the device addressed by the legacy POST /webhook and
	// by test alerts that name no device.
	DeviceID string
	Version  string
}

// Server is the HTTP API server for the pager bridge.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	bridge    Bridge
	transport Transport
	deviceID  string
	version   string
	handler   http.Handler
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge service is required")
	}
	if deps.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if deps.DeviceID == "" {
		return nil, fmt.Errorf("default device id is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		transport: deps.Transport,
		deviceID:  deps.DeviceID,
		version:   deps.Version,
	}
	s.handler = s.buildRouter()
	return s, nil
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start launches the HTTP listener in a background goroutine.
//
// ctx is accepted for symmetry with the other components; the listener's
// lifetime is controlled by Close.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.handler,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr, "version", s.version)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
