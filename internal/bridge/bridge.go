package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-cec/internal/source"
	"github.com/nerrad567/gray-logic-cec/internal/unit"
)

const (
	// commandTimeout bounds handing a command to the service loop.
	commandTimeout = 5 * time.Second

	// stateTimeout bounds reading a device snapshot for publishing.
	stateTimeout = 2 * time.Second

	defaultQueueSize = 256
	publishQoS       = 1
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Unit is the subset of *unit.Unit the bridge drives.
type Unit interface {
	DeviceIDs() []string
	RequestOneTouchPlay(ctx context.Context, id string, sink source.ResultSink) error
	Standby(ctx context.Context, id string) error
	DeviceStatus(ctx context.Context, id string) (unit.DeviceStatus, error)
}

// Options configures a Bridge.
type Options struct {
	// BridgeID names the bridge in health messages. Default: "cec".
	BridgeID string

	// Version is reported in health messages.
	Version string

	// AdapterAddress is the adapter connection string shown in health messages.
	AdapterAddress string

	// HealthInterval between health reports. Default: 30 seconds.
	HealthInterval time.Duration

	// QueueSize bounds pending publications. Default: 256.
	QueueSize int

	MQTT    MQTTClient
	Unit    Unit
	Adapter AdapterStatus
	Logger  Logger
}

// Bridge translates MQTT commands into unit operations and publishes unit
// events as acks, retained state and bus events. It implements unit.Observer.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	unit.NopObserver

	mqtt   MQTTClient
	unit   Unit
	health *HealthReporter
	topics mqtt.Topics
	known  map[string]bool

	jobs chan func()

	// Publisher-goroutine confined.
	lastActive source.ActiveSource
	haveActive bool

	errors  atomic.Uint64
	dropped atomic.Uint64

	ctx       context.Context
	ctxCancel context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once

	logger Logger
}

// Ensure Bridge implements unit.Observer.
var _ unit.Observer = (*Bridge)(nil)

// New creates a bridge. Register it with unit.AddObserver and call Start.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("%w: MQTT client is required", ErrInvalidOptions)
	}
	if opts.Unit == nil {
		return nil, fmt.Errorf("%w: unit is required", ErrInvalidOptions)
	}

	bridgeID := opts.BridgeID
	if bridgeID == "" {
		bridgeID = mqtt.Protocol
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	ids := opts.Unit.DeviceIDs()
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	b := &Bridge{
		mqtt:      opts.MQTT,
		unit:      opts.Unit,
		known:     known,
		jobs:      make(chan func(), queueSize),
		ctx:       ctx,
		ctxCancel: cancel,
		done:      make(chan struct{}),
		logger:    opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:    bridgeID,
		Version:     opts.Version,
		Address:     opts.AdapterAddress,
		Interval:    opts.HealthInterval,
		Publisher:   opts.MQTT,
		Adapter:     opts.Adapter,
		DeviceCount: len(ids),
		Errors:      &b.errors,
		Logger:      opts.Logger,
	})

	return b, nil
}

// Start subscribes to commands, starts the publisher and health reporting,
// and publishes the initial state of every device.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	commandTopic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(commandTopic, publishQoS, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	b.wg.Add(1)
	go b.publishLoop()

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	for id := range b.known {
		b.enqueueState(id)
	}

	b.logInfo("bridge started", "devices", len(b.known))
	return nil
}

// Stop publishes queued messages and a final health status, then returns.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
		b.ctxCancel()
		b.health.Stop()
		b.logInfo("bridge stopped")
	})
}

// Errors returns the number of failed publications and commands.
func (b *Bridge) Errors() uint64 { return b.errors.Load() }

// Dropped returns the number of publications dropped on a full queue.
func (b *Bridge) Dropped() uint64 { return b.dropped.Load() }

// handleCommand processes a command message. Runs on the MQTT client's
// goroutine.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	deviceID := b.topics.DeviceFromTopic(topic)
	if deviceID == "" {
		return fmt.Errorf("%w: unexpected topic %q", ErrUnknownCommand, topic)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.errors.Add(1)
		return fmt.Errorf("parsing command on %s: %w", topic, err)
	}
	if cmd.ID == "" {
		cmd.ID = newCommandID()
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = deviceID
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	if cmd.DeviceID != deviceID {
		b.enqueueAck(deviceID, NewAckError(cmd, ErrCodeInvalidCommand,
			fmt.Sprintf("device_id %q does not match topic device %q", cmd.DeviceID, deviceID)))
		return nil
	}
	if !b.known[deviceID] {
		b.enqueueAck(deviceID, NewAckError(cmd, ErrCodeNotConfigured,
			fmt.Sprintf("device %s not configured", deviceID)))
		return nil
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	switch cmd.Command {
	case CommandOneTouchPlay:
		b.oneTouchPlay(ctx, cmd)
	case CommandStandby:
		b.standby(ctx, cmd)
	default:
		b.enqueueAck(deviceID, NewAckError(cmd, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command %q", cmd.Command)))
	}
	return nil
}

// oneTouchPlay acks "accepted" first so that the result ack, which may be
// delivered during the request itself, always follows it.
func (b *Bridge) oneTouchPlay(ctx context.Context, cmd CommandMessage) {
	b.enqueueAck(cmd.DeviceID, NewAckMessage(cmd, AckAccepted))

	sink := source.ResultFunc(func(result source.ResultCode) error {
		b.enqueueAck(cmd.DeviceID, NewResultAck(cmd, result))
		return nil
	})
	if err := b.unit.RequestOneTouchPlay(ctx, cmd.DeviceID, sink); err != nil {
		b.errors.Add(1)
		b.logError("one touch play request failed", err, "command_id", cmd.ID)
		b.enqueueAck(cmd.DeviceID, NewAckError(cmd, errorCode(err), err.Error()))
	}
}

func (b *Bridge) standby(ctx context.Context, cmd CommandMessage) {
	if err := b.unit.Standby(ctx, cmd.DeviceID); err != nil {
		b.errors.Add(1)
		b.logError("standby failed", err, "command_id", cmd.ID)
		b.enqueueAck(cmd.DeviceID, NewAckError(cmd, errorCode(err), err.Error()))
		return
	}
	b.enqueueAck(cmd.DeviceID, NewAckMessage(cmd, AckCompleted))
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, unit.ErrUnknownDevice):
		return ErrCodeNotConfigured
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	default:
		return ErrCodeBridgeError
	}
}

// ActiveSourceChanged publishes the bus-wide active source (once per change,
// although every hosted device reports it) and the device's state.
func (b *Bridge) ActiveSourceChanged(d *source.Device, as source.ActiveSource) {
	id := d.ID()
	b.enqueue(func() {
		if !b.haveActive || b.lastActive != as {
			b.lastActive, b.haveActive = as, true
			b.publishJSON(b.topics.Event(EventActiveSource), NewActiveSourceEvent(as), false)
		}
		b.publishState(id)
	})
}

// IsActiveSourceChanged republishes the device's state.
func (b *Bridge) IsActiveSourceChanged(d *source.Device, _ bool) {
	b.enqueueState(d.ID())
}

// LocalActivePortChanged republishes the device's state.
func (b *Bridge) LocalActivePortChanged(d *source.Device, _ source.Port) {
	b.enqueueState(d.ID())
}

// OneTouchPlayCompleted republishes the device's state.
func (b *Bridge) OneTouchPlayCompleted(d *source.Device, _ source.ResultCode) {
	b.enqueueState(d.ID())
}

// PowerStatusChanged publishes a power event.
func (b *Bridge) PowerStatusChanged(status cec.PowerStatus) {
	b.enqueue(func() {
		b.publishJSON(b.topics.Event(EventPower), NewPowerEvent(status), false)
	})
}

// enqueueAck publishes on the ack topic of the device the command arrived for.
func (b *Bridge) enqueueAck(topicDevice string, ack AckMessage) {
	b.enqueue(func() {
		b.publishJSON(b.topics.Ack(topicDevice), ack, false)
	})
}

func (b *Bridge) enqueueState(id string) {
	b.enqueue(func() { b.publishState(id) })
}

// enqueue queues a publication without blocking. Called on the service loop.
func (b *Bridge) enqueue(job func()) {
	select {
	case b.jobs <- job:
	default:
		if b.dropped.Add(1)%100 == 1 {
			b.logWarn("publish queue full, dropping", "dropped_total", b.dropped.Load())
		}
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()

	for {
		select {
		case job := <-b.jobs:
			job()
		case <-b.done:
			for {
				select {
				case job := <-b.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) publishState(id string) {
	ctx, cancel := context.WithTimeout(b.ctx, stateTimeout)
	defer cancel()

	st, err := b.unit.DeviceStatus(ctx, id)
	if err != nil {
		b.logWarn("reading device state failed", "device_id", id, "error", err)
		return
	}
	b.publishJSON(b.topics.State(id), NewStateMessage(st), true)
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.errors.Add(1)
		b.logError("marshal failed", err, "topic", topic)
		return
	}
	if err := b.mqtt.Publish(topic, payload, publishQoS, retained); err != nil {
		b.errors.Add(1)
		b.logError("publish failed", err, "topic", topic)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
