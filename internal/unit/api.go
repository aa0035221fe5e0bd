package unit

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/source"
)

// DeviceStatus is a snapshot of one hosted device.
type DeviceStatus struct {
	ID              string              `json:"id"`
	Type            string              `json:"type"`
	LogicalAddress  cec.LogicalAddress  `json:"logical_address"`
	SwitchDevice    bool                `json:"switch_device"`
	IsActiveSource  bool                `json:"is_active_source"`
	ActiveSource    source.ActiveSource `json:"active_source"`
	LocalActivePort source.Port         `json:"local_active_port"`
	OneTouchPlay    bool                `json:"one_touch_play_in_progress"`
}

// Status is a snapshot of the unit.
type Status struct {
	PhysicalAddress string           `json:"physical_address"`
	PowerStatus     string           `json:"power_status"`
	Connected       bool             `json:"connected"`
	PendingActions  int              `json:"pending_actions"`
	Devices         []DeviceStatus   `json:"devices"`
	Adapter         cec.AdapterStats `json:"adapter"`
}

// DeviceIDs returns the hosted device IDs in configuration order.
func (u *Unit) DeviceIDs() []string {
	ids := make([]string, len(u.devices))
	for i, d := range u.devices {
		ids[i] = d.ID()
	}
	return ids
}

// device looks up a hosted device by ID.
func (u *Unit) device(id string) (*source.Device, error) {
	d, ok := u.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	return d, nil
}

// RequestOneTouchPlay starts (or joins) one-touch-play on a device. sink is
// called on the service loop when the sequence resolves.
//
// Returns:
//   - error: ErrUnknownDevice, or a loop error if the unit is stopped
func (u *Unit) RequestOneTouchPlay(ctx context.Context, id string, sink source.ResultSink) error {
	d, err := u.device(id)
	if err != nil {
		return err
	}
	return u.loop.Call(ctx, func() { d.OneTouchPlay(sink) })
}

// OneTouchPlay runs one-touch-play on a device and waits for the result.
//
// Returns:
//   - source.ResultCode: Outcome of the sequence
//   - error: ErrUnknownDevice, a loop error, or the context error
func (u *Unit) OneTouchPlay(ctx context.Context, id string) (source.ResultCode, error) {
	results := make(chan source.ResultCode, 1)
	sink := source.ResultFunc(func(r source.ResultCode) error {
		results <- r
		return nil
	})
	if err := u.RequestOneTouchPlay(ctx, id, sink); err != nil {
		return source.ResultException, err
	}

	select {
	case r := <-results:
		return r, nil
	case <-ctx.Done():
		return source.ResultTimeout, fmt.Errorf("unit: waiting for one touch play: %w", ctx.Err())
	}
}

// Standby asks the display to enter standby on behalf of a device.
func (u *Unit) Standby(ctx context.Context, id string) error {
	d, err := u.device(id)
	if err != nil {
		return err
	}
	return u.loop.Call(ctx, d.SendStandby)
}

// IsActiveSource reports whether a device is the active source.
func (u *Unit) IsActiveSource(ctx context.Context, id string) (bool, error) {
	d, err := u.device(id)
	if err != nil {
		return false, err
	}
	var active bool
	err = u.loop.Call(ctx, func() { active = d.IsActiveSource() })
	return active, err
}

// LocalActivePort returns a device's selected input port without touching
// the loop.
func (u *Unit) LocalActivePort(id string) (source.Port, error) {
	d, err := u.device(id)
	if err != nil {
		return source.PortHome, err
	}
	return d.LocalActivePort(), nil
}

// DeviceStatus returns a snapshot of one device.
func (u *Unit) DeviceStatus(ctx context.Context, id string) (DeviceStatus, error) {
	d, err := u.device(id)
	if err != nil {
		return DeviceStatus{}, err
	}
	var st DeviceStatus
	err = u.loop.Call(ctx, func() { st = u.deviceStatus(d) })
	return st, err
}

// Status returns a snapshot of the unit and all devices.
func (u *Unit) Status(ctx context.Context) (Status, error) {
	st := Status{
		PhysicalAddress: u.PhysicalAddress().String(),
		Connected:       u.conn.IsConnected(),
		Adapter:         u.conn.Stats(),
	}
	err := u.loop.Call(ctx, func() {
		st.PowerStatus = u.power.String()
		st.PendingActions = u.sched.Pending()
		for _, d := range u.devices {
			st.Devices = append(st.Devices, u.deviceStatus(d))
		}
	})
	return st, err
}

// deviceStatus builds a snapshot. Loop-only.
func (u *Unit) deviceStatus(d *source.Device) DeviceStatus {
	return DeviceStatus{
		ID:              d.ID(),
		Type:            d.Type().String(),
		LogicalAddress:  d.LogicalAddress(),
		SwitchDevice:    d.IsSwitchDevice(),
		IsActiveSource:  d.IsActiveSource(),
		ActiveSource:    d.ActiveSource(),
		LocalActivePort: d.LocalActivePort(),
		OneTouchPlay:    u.sched.Find(d.LogicalAddress(), source.KindOneTouchPlay) != nil,
	}
}
