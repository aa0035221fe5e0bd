package source

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-cec/internal/action"
	"github.com/nerrad567/gray-logic-cec/internal/cec"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Service is the physical unit hosting the device.
//
// All methods are called on the service loop.
type Service interface {
	// PhysicalAddress returns the unit's own physical address.
	PhysicalAddress() cec.PhysicalAddress

	// PowerStatus returns the unit's power state.
	PowerStatus() cec.PowerStatus

	// IsPowerStandbyOrTransient reports whether the unit is not fully on.
	IsPowerStandbyOrTransient() bool

	// WakeUp brings the unit out of standby.
	WakeUp()

	// HostedDevice returns the hosted device of the given role, or nil.
	HostedDevice(t cec.DeviceType) *Device

	// Send transmits a message. Fire-and-forget.
	Send(msg cec.Message)
}

// Config configures a Device.
type Config struct {
	// ID is the stable name used in MQTT topics and the API.
	// Default: the logical address name (e.g. "playback_1").
	ID string

	// Type is the device role.
	Type cec.DeviceType

	// LogicalAddress is the address claimed on the bus for this device.
	LogicalAddress cec.LogicalAddress

	// SwitchDevice marks a device that selects among input ports.
	// Requires Router.
	SwitchDevice bool

	// Router performs input switching for switch devices.
	Router RoutingCapability

	// Service is the hosting unit. Required.
	Service Service

	// Loop is the unit's service loop. Required.
	Loop *action.Loop

	// Scheduler is the unit's pending-action table. Required.
	Scheduler *action.Scheduler

	// Observer receives state changes. Optional.
	Observer Observer

	// Logger is optional.
	Logger Logger

	// OneTouchPlay tunes the one-touch-play sequence.
	OneTouchPlay OneTouchPlayConfig
}

// OneTouchPlayConfig tunes the one-touch-play sequence.
type OneTouchPlayConfig struct {
	// PollInterval is the wait between power status queries.
	// Default: 2 seconds.
	PollInterval time.Duration

	// MaxPolls is the number of power status queries before giving up.
	// Default: 10.
	MaxPolls int

	// Timeout bounds the whole sequence.
	// Default: (MaxPolls+1) * PollInterval.
	Timeout time.Duration
}

// Default one-touch-play timing.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxPolls     = 10
)

func (c OneTouchPlayConfig) withDefaults() OneTouchPlayConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = DefaultMaxPolls
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Duration(c.MaxPolls+1) * c.PollInterval
	}
	return c
}

// Device is one logical source device hosted on a unit.
type Device struct {
	id       string
	devType  cec.DeviceType
	address  cec.LogicalAddress
	isSwitch bool
	router   RoutingCapability

	svc      Service
	loop     *action.Loop
	sched    *action.Scheduler
	observer Observer
	logger   Logger
	otp      OneTouchPlayConfig

	// Loop-confined.
	activeSource   ActiveSource
	isActiveSource bool

	portMu          sync.Mutex
	localActivePort Port
}

// NewDevice creates a device from cfg.
//
// Returns:
//   - *Device: Device in its default state (not active source, home port)
//   - error: ErrInvalidConfig if required collaborators are missing or the
//     switch flag and router disagree
func NewDevice(cfg Config) (*Device, error) {
	if cfg.Service == nil || cfg.Loop == nil || cfg.Scheduler == nil {
		return nil, fmt.Errorf("%w: service, loop and scheduler are required", ErrInvalidConfig)
	}
	if !cfg.LogicalAddress.IsValid() || cfg.LogicalAddress == cec.AddrUnregistered {
		return nil, fmt.Errorf("%w: logical address %d", ErrInvalidConfig, cfg.LogicalAddress)
	}
	if cfg.SwitchDevice != (cfg.Router != nil) {
		return nil, fmt.Errorf("%w: switch devices need a router and only switch devices may have one", ErrInvalidConfig)
	}

	id := cfg.ID
	if id == "" {
		id = cfg.LogicalAddress.String()
	}

	return &Device{
		id:              id,
		devType:         cfg.Type,
		address:         cfg.LogicalAddress,
		isSwitch:        cfg.SwitchDevice,
		router:          cfg.Router,
		svc:             cfg.Service,
		loop:            cfg.Loop,
		sched:           cfg.Scheduler,
		observer:        cfg.Observer,
		logger:          cfg.Logger,
		otp:             cfg.OneTouchPlay.withDefaults(),
		activeSource:    NoActiveSource,
		localActivePort: PortHome,
	}, nil
}

// ID returns the device's configured name.
func (d *Device) ID() string { return d.id }

// Type returns the device role.
func (d *Device) Type() cec.DeviceType { return d.devType }

// LogicalAddress returns the device's bus address.
func (d *Device) LogicalAddress() cec.LogicalAddress { return d.address }

// IsSwitchDevice reports whether the device selects among input ports.
func (d *Device) IsSwitchDevice() bool { return d.isSwitch }

// SetActiveSource replaces the recorded active source unconditionally.
// Callers decide whether a replacement is warranted.
func (d *Device) SetActiveSource(as ActiveSource) {
	d.loop.AssertOnLoop()
	d.activeSource = as
}

// ActiveSource returns the recorded active source.
func (d *Device) ActiveSource() ActiveSource {
	d.loop.AssertOnLoop()
	return d.activeSource
}

// IsActiveSource reports whether this device is the active source.
func (d *Device) IsActiveSource() bool {
	d.loop.AssertOnLoop()
	return d.isActiveSource
}

// SetIsActiveSource sets the local active-source flag.
func (d *Device) SetIsActiveSource(on bool) {
	d.loop.AssertOnLoop()
	if d.isActiveSource == on {
		return
	}
	d.isActiveSource = on
	d.logInfo("active source flag changed", "active", on)
	if d.observer != nil {
		d.observer.IsActiveSourceChanged(d, on)
	}
}

// LocalActivePort returns the selected input port. Safe from any goroutine.
func (d *Device) LocalActivePort() Port {
	d.portMu.Lock()
	defer d.portMu.Unlock()
	return d.localActivePort
}

// SetLocalActivePort records the selected input port. Safe from any goroutine.
func (d *Device) SetLocalActivePort(port Port) {
	d.portMu.Lock()
	changed := d.localActivePort != port
	d.localActivePort = port
	d.portMu.Unlock()

	if changed && d.observer != nil {
		d.observer.LocalActivePortChanged(d, port)
	}
}

// installActiveSource records as if it differs from the current value.
// Returns true if the register changed.
func (d *Device) installActiveSource(as ActiveSource) bool {
	if d.activeSource == as {
		return false
	}
	d.SetActiveSource(as)
	d.logDebug("active source changed", "active_source", as.String())
	if d.observer != nil {
		d.observer.ActiveSourceChanged(d, as)
	}
	return true
}

// claimActiveSource makes this device the active source: record it, set the
// flag, wake the unit if needed and announce it on the bus.
func (d *Device) claimActiveSource() {
	pa := d.svc.PhysicalAddress()
	d.installActiveSource(ActiveSource{LogicalAddress: d.address, PhysicalAddress: pa})
	d.SetIsActiveSource(true)
	d.wakeUpIfActiveSource()
	d.svc.Send(cec.BuildActiveSource(d.address, pa))
}

func (d *Device) wakeUpIfActiveSource() {
	if d.isActiveSource && d.svc.IsPowerStandbyOrTransient() {
		d.svc.WakeUp()
	}
}

// OnHotplug handles a connection change on an input port. The active-source
// flag is kept so that a re-plugged source stays selected.
func (d *Device) OnHotplug(port int, connected bool) {
	d.loop.AssertOnLoop()
	d.logDebug("hotplug", "port", port, "connected", connected)
	if d.svc.IsPowerStandbyOrTransient() {
		d.svc.WakeUp()
	}
}

// SendStandby asks the display to go to standby.
func (d *Device) SendStandby() {
	d.loop.AssertOnLoop()
	d.svc.Send(cec.BuildStandby(d.address, cec.AddrTV))
}

func (d *Device) logDebug(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, append([]any{"device", d.id}, keysAndValues...)...)
	}
}

func (d *Device) logInfo(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Info(msg, append([]any{"device", d.id}, keysAndValues...)...)
	}
}

func (d *Device) logWarn(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, append([]any{"device", d.id}, keysAndValues...)...)
	}
}
