package unit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-cec/internal/action"
	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/source"
)

// Defaults for unit configuration.
const (
	defaultLoopBuffer  = 64
	defaultOutboxSize  = 64
	defaultSendTimeout = 2 * time.Second
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DeviceConfig describes one hosted logical device.
type DeviceConfig struct {
	ID             string
	Type           cec.DeviceType
	LogicalAddress cec.LogicalAddress

	// SwitchDevice enables input routing on Ports.
	SwitchDevice bool
	Ports        []source.Port
}

// Config configures a Unit.
type Config struct {
	// PhysicalAddress of the unit. When invalid, the address reported by the
	// adapter is used if the connector provides one.
	PhysicalAddress cec.PhysicalAddress

	// Devices hosted on the unit. At least one is required.
	Devices []DeviceConfig

	// OneTouchPlay tunes the one-touch-play sequence for every device.
	OneTouchPlay source.OneTouchPlayConfig

	// TopologyTTL bounds how long learnt addresses are kept.
	TopologyTTL time.Duration

	// SendTimeout bounds each adapter write. Default: 2 seconds.
	SendTimeout time.Duration

	// Switcher drives input switching for switch devices. Optional.
	Switcher source.PortSwitcher
}

// physicalAddressReporter is implemented by connectors that learn the unit's
// address from the adapter.
type physicalAddressReporter interface {
	PhysicalAddress() cec.PhysicalAddress
}

// Unit is a physical unit hosting one or more logical source devices.
type Unit struct {
	conn   cec.Connector
	loop   *action.Loop
	sched  *action.Scheduler
	topo   *cec.Topology
	logger Logger
	events *fanout

	devices []*source.Device
	byID    map[string]*source.Device
	hosted  map[cec.LogicalAddress]*source.Device

	pa    atomic.Uint32
	power cec.PowerStatus // loop-confined

	outbox      chan cec.Message
	sendTimeout time.Duration
	done        chan struct{}
	wg          sync.WaitGroup
	startOnce   sync.Once
	closeOnce   sync.Once
}

// Ensure Unit implements source.Service.
var _ source.Service = (*Unit)(nil)

// New creates a unit and its devices. Call Start to begin processing.
//
// Parameters:
//   - cfg: Unit configuration
//   - conn: Adapter connection
//   - logger: Optional logger (may be nil)
//
// Returns:
//   - *Unit: Unit ready to Start
//   - error: ErrInvalidConfig or a device construction error
func New(cfg Config, conn cec.Connector, logger Logger) (*Unit, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: connector is required", ErrInvalidConfig)
	}
	if len(cfg.Devices) == 0 {
		return nil, fmt.Errorf("%w: at least one device is required", ErrInvalidConfig)
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	loop := action.NewLoop(defaultLoopBuffer, logger)
	u := &Unit{
		conn:        conn,
		loop:        loop,
		sched:       action.NewScheduler(loop, logger),
		topo:        cec.NewTopology(cfg.TopologyTTL),
		logger:      logger,
		events:      &fanout{},
		byID:        make(map[string]*source.Device),
		hosted:      make(map[cec.LogicalAddress]*source.Device),
		power:       cec.PowerOn,
		outbox:      make(chan cec.Message, defaultOutboxSize),
		sendTimeout: cfg.SendTimeout,
		done:        make(chan struct{}),
	}

	pa := cfg.PhysicalAddress
	if !pa.IsValid() {
		if r, ok := conn.(physicalAddressReporter); ok {
			pa = r.PhysicalAddress()
		}
	}
	u.pa.Store(uint32(pa))

	for _, dc := range cfg.Devices {
		if err := u.addDevice(dc, cfg); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (u *Unit) addDevice(dc DeviceConfig, cfg Config) error {
	if _, dup := u.hosted[dc.LogicalAddress]; dup {
		return fmt.Errorf("%w: logical address %s hosted twice", ErrInvalidConfig, dc.LogicalAddress)
	}

	var router source.RoutingCapability
	if dc.SwitchDevice {
		router = &source.SwitchRouter{Switcher: cfg.Switcher, Ports: dc.Ports}
	}

	d, err := source.NewDevice(source.Config{
		ID:             dc.ID,
		Type:           dc.Type,
		LogicalAddress: dc.LogicalAddress,
		SwitchDevice:   dc.SwitchDevice,
		Router:         router,
		Service:        u,
		Loop:           u.loop,
		Scheduler:      u.sched,
		Observer:       u.events,
		Logger:         u.logger,
		OneTouchPlay:   cfg.OneTouchPlay,
	})
	if err != nil {
		return fmt.Errorf("creating device %q: %w", dc.ID, err)
	}
	if _, dup := u.byID[d.ID()]; dup {
		return fmt.Errorf("%w: device id %q used twice", ErrInvalidConfig, d.ID())
	}

	u.devices = append(u.devices, d)
	u.byID[d.ID()] = d
	u.hosted[d.LogicalAddress()] = d
	return nil
}

// AddObserver registers an observer. Must be called before Start.
func (u *Unit) AddObserver(o Observer) {
	u.events.observers = append(u.events.observers, o)
}

// SetOnActionTimeout registers a hook for scheduler deadline expiries.
// Must be called before Start.
func (u *Unit) SetOnActionTimeout(fn func(owner cec.LogicalAddress, kind action.Kind)) {
	u.sched.SetOnTimeout(fn)
}

// Start wires the connector callbacks, starts the loop and the sender, and
// announces every hosted device's physical address.
func (u *Unit) Start() {
	u.startOnce.Do(func() {
		u.loop.Start()

		u.wg.Add(1)
		go u.sendLoop()

		u.conn.SetOnMessage(u.onMessage)
		u.conn.SetOnHotplug(u.onHotplug)

		_ = u.loop.Post(func() {
			for _, d := range u.devices {
				u.Send(cec.BuildReportPhysicalAddress(d.LogicalAddress(), u.PhysicalAddress(), d.Type()))
			}
		})
		u.logInfo("unit started", "physical_address", u.PhysicalAddress().String(), "devices", len(u.devices))
	})
}

// Close stops processing. The connector is left open for its owner to close.
func (u *Unit) Close() {
	u.closeOnce.Do(func() {
		u.conn.SetOnMessage(nil)
		u.conn.SetOnHotplug(nil)
		u.loop.Close()
		close(u.done)
		u.wg.Wait()
		u.logInfo("unit stopped")
	})
}

// onMessage is the connector callback; it hands the message to the loop.
func (u *Unit) onMessage(msg cec.Message) {
	if err := u.loop.Post(func() { u.dispatch(msg) }); err != nil {
		u.logDebug("dropping message after shutdown", "message", msg.String())
	}
}

// onHotplug is the connector callback for input-port changes.
func (u *Unit) onHotplug(port int, connected bool) {
	_ = u.loop.Post(func() {
		u.topo.Flush()
		for _, d := range u.devices {
			d.OnHotplug(port, connected)
		}
	})
}

// dispatch delivers one inbound message to the hosted devices. Loop-only.
func (u *Unit) dispatch(msg cec.Message) {
	if err := msg.Validate(); err != nil {
		u.logWarn("dropping invalid message", "error", err)
		return
	}
	if _, own := u.hosted[msg.Source]; own {
		return
	}

	u.topo.Observe(msg)
	u.events.MessageReceived(msg)

	_, addressed := u.hosted[msg.Destination]
	if !msg.IsBroadcast() && !addressed {
		return
	}

	handled := false
	if msg.Opcode == cec.OpStandby {
		u.enterStandby()
		handled = true
	}

	for _, d := range u.devices {
		if msg.IsBroadcast() || msg.Destination == d.LogicalAddress() {
			if d.Dispatch(msg) {
				handled = true
			}
		}
	}

	if !handled && !msg.IsBroadcast() && shouldAbort(msg.Opcode) {
		u.Send(cec.BuildFeatureAbort(msg.Destination, msg.Source, msg.Opcode, cec.AbortUnrecognizedOpcode))
	}
}

// shouldAbort reports whether an unhandled directed opcode gets a
// <Feature Abort>. Replies and aborts are never answered.
func shouldAbort(op cec.Opcode) bool {
	switch op {
	case cec.OpFeatureAbort, cec.OpReportPowerStatus, cec.OpReportPhysicalAddress:
		return false
	default:
		return true
	}
}

func (u *Unit) enterStandby() {
	if u.power == cec.PowerStandby {
		return
	}
	u.power = cec.PowerStandby
	u.logInfo("entering standby")
	u.events.PowerStatusChanged(u.power)
}

// PhysicalAddress returns the unit's physical address.
func (u *Unit) PhysicalAddress() cec.PhysicalAddress {
	return cec.PhysicalAddress(u.pa.Load()) //nolint:gosec // stored from a uint16
}

// PowerStatus returns the unit's power state. Loop-only.
func (u *Unit) PowerStatus() cec.PowerStatus {
	u.loop.AssertOnLoop()
	return u.power
}

// IsPowerStandbyOrTransient reports whether the unit is not fully on. Loop-only.
func (u *Unit) IsPowerStandbyOrTransient() bool {
	u.loop.AssertOnLoop()
	return u.power.IsStandbyOrTransient()
}

// WakeUp brings the unit out of standby. Loop-only.
func (u *Unit) WakeUp() {
	u.loop.AssertOnLoop()
	if u.power == cec.PowerOn {
		return
	}
	u.power = cec.PowerOn
	u.logInfo("waking up")
	u.events.PowerStatusChanged(u.power)
}

// HostedDevice returns the first hosted device of type t, or nil.
func (u *Unit) HostedDevice(t cec.DeviceType) *source.Device {
	for _, d := range u.devices {
		if d.Type() == t {
			return d
		}
	}
	return nil
}

// Send queues msg for transmission. Never blocks; drops when the outbox is full.
func (u *Unit) Send(msg cec.Message) {
	select {
	case u.outbox <- msg:
	default:
		u.logError("outbox full, dropping message", ErrOutboxFull, "message", msg.String())
		u.events.MessageSent(msg, ErrOutboxFull)
	}
}

// sendLoop writes queued messages to the adapter in order.
func (u *Unit) sendLoop() {
	defer u.wg.Done()

	for {
		select {
		case <-u.done:
			return
		case msg := <-u.outbox:
			ctx, cancel := context.WithTimeout(context.Background(), u.sendTimeout)
			err := u.conn.Send(ctx, msg)
			cancel()
			if err != nil {
				u.logError("send failed", err, "message", msg.String())
			} else {
				u.logDebug("sent", "message", msg.String())
			}
			u.events.MessageSent(msg, err)
		}
	}
}

// Topology returns the learnt bus topology.
func (u *Unit) Topology() *cec.Topology {
	return u.topo
}

// Loop returns the unit's service loop.
func (u *Unit) Loop() *action.Loop {
	return u.loop
}

func (u *Unit) logDebug(msg string, keysAndValues ...any) {
	if u.logger != nil {
		u.logger.Debug(msg, keysAndValues...)
	}
}

func (u *Unit) logInfo(msg string, keysAndValues ...any) {
	if u.logger != nil {
		u.logger.Info(msg, keysAndValues...)
	}
}

func (u *Unit) logWarn(msg string, keysAndValues ...any) {
	if u.logger != nil {
		u.logger.Warn(msg, keysAndValues...)
	}
}

func (u *Unit) logError(msg string, err error, keysAndValues ...any) {
	if u.logger != nil {
		u.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
