package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-cec/internal/busmonitor"
	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cec/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-cec/internal/observability/metrics"
	"github.com/nerrad567/gray-logic-cec/internal/source"
	"github.com/nerrad567/gray-logic-cec/internal/unit"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Unit is the part of the CEC unit the API drives.
type Unit interface {
	DeviceIDs() []string
	DeviceStatus(ctx context.Context, id string) (unit.DeviceStatus, error)
	Status(ctx context.Context) (unit.Status, error)
	OneTouchPlay(ctx context.Context, id string) (source.ResultCode, error)
	Standby(ctx context.Context, id string) error
}

// TopologyReader lists what the bus has told us about other devices.
type TopologyReader interface {
	Devices() []cec.TopologyEntry
}

// SeenDevices is the bus monitor's persisted device list.
type SeenDevices interface {
	Devices(ctx context.Context) ([]busmonitor.SeenDevice, error)
	Forget(ctx context.Context, la cec.LogicalAddress) error
}

// ConnectionChecker reports whether an upstream connection is up.
type ConnectionChecker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Unit     Unit
	Topology TopologyReader    // optional
	Seen     SeenDevices       // optional: nil when the bus monitor is disabled
	Metrics  *metrics.Metrics  // optional: /metrics is not served when nil
	MQTT     ConnectionChecker // optional: reported by /health
	Hub      *Hub              // optional: created by Start when nil
	Version  string
}

// Server is the HTTP API server for the CEC service.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	unit      Unit
	topology  TopologyReader
	seen      SeenDevices
	metrics   *metrics.Metrics
	mqtt      ConnectionChecker
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, unit)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Unit == nil {
		return nil, fmt.Errorf("unit is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		unit:      deps.Unit,
		topology:  deps.Topology,
		seen:      deps.Seen,
		metrics:   deps.Metrics,
		mqtt:      deps.MQTT,
		hub:       deps.Hub,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, builds the router and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Parent context for the hub; cancelled by Close()
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger, s.httpMetrics())
	}
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
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
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
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
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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

func (s *Server) httpMetrics() *metrics.HTTPMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.HTTP
}
