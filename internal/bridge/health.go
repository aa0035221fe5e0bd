package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/infrastructure/mqtt"
)

const (
	defaultHealthInterval = 30 * time.Second
	healthQoS             = 1
)

// AdapterStatus reports adapter connection state. *cec.AdapterClient
// implements it.
type AdapterStatus interface {
	IsConnected() bool
	Stats() cec.AdapterStats
}

// HealthPublisher publishes raw payloads. Typically the MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporter publishes retained health status at a fixed interval.
type HealthReporter struct {
	bridgeID    string
	version     string
	address     string
	startTime   time.Time
	interval    time.Duration
	publisher   HealthPublisher
	adapter     AdapterStatus
	deviceCount int
	errors      *atomic.Uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Address is the adapter connection string shown in health messages.
	Address string

	// Interval between reports. Default: 30 seconds.
	Interval time.Duration

	Publisher   HealthPublisher
	Adapter     AdapterStatus
	DeviceCount int

	// Errors is the bridge's error counter, added to the adapter's.
	Errors *atomic.Uint64

	Logger Logger
}

// NewHealthReporter creates a health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	errs := cfg.Errors
	if errs == nil {
		errs = &atomic.Uint64{}
	}

	return &HealthReporter{
		bridgeID:    cfg.BridgeID,
		version:     cfg.Version,
		address:     cfg.Address,
		startTime:   time.Now(),
		interval:    interval,
		publisher:   cfg.Publisher,
		adapter:     cfg.Adapter,
		deviceCount: cfg.DeviceCount,
		errors:      errs,
		done:        make(chan struct{}),
		logger:      cfg.Logger,
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.adapter == nil || !h.adapter.IsConnected() {
		return HealthDegraded, "CEC adapter disconnected"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	var stats cec.AdapterStats
	if h.adapter != nil {
		stats = h.adapter.Stats()
	}

	msg := NewHealthMessage(h.bridgeID, h.version, status, stats, h.errors.Load(), h.deviceCount, h.startTime)
	msg.Reason = reason
	msg.Connection.Address = h.address

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal health: %w", err)
	}
	return h.publisher.Publish(mqtt.Topics{}.Health(), payload, healthQoS, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, "error", err)
	}
}
