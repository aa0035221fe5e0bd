package source

import (
	"github.com/nerrad567/gray-logic-cec/internal/cec"
)

// electionOrder lists the roles allowed to claim the active source on
// <Set Stream Path>, highest priority first.
var electionOrder = []cec.DeviceType{
	cec.DeviceTypePlayback,
	cec.DeviceTypeAudioSystem,
}

// elect returns the hosted device that claims the active source for the
// unit, or nil if the unit hosts no eligible role.
func elect(svc Service) *Device {
	for _, t := range electionOrder {
		if d := svc.HostedDevice(t); d != nil {
			return d
		}
	}
	return nil
}

// Dispatch offers msg to the device's running actions, then to its handlers.
//
// Returns:
//   - bool: true if the message was handled
func (d *Device) Dispatch(msg cec.Message) bool {
	d.loop.AssertOnLoop()

	if d.sched.Dispatch(d.address, msg) {
		return true
	}

	switch msg.Opcode {
	case cec.OpActiveSource:
		return d.HandleActiveSource(msg)
	case cec.OpRequestActiveSource:
		return d.HandleRequestActiveSource(msg)
	case cec.OpSetStreamPath:
		return d.HandleSetStreamPath(msg)
	case cec.OpGivePhysicalAddress:
		return d.handleGivePhysicalAddress(msg)
	case cec.OpGiveDevicePowerStatus:
		return d.handleGiveDevicePowerStatus(msg)
	default:
		return false
	}
}

// HandleActiveSource processes an <Active Source> announcement.
//
// The announced pair is recorded only if it differs from the current one.
// The local flag is recomputed and routing re-evaluated every time, since the
// physical path may have changed even when the claimed source did not.
func (d *Device) HandleActiveSource(msg cec.Message) bool {
	d.loop.AssertOnLoop()

	pa := msg.PhysicalAddress()
	d.installActiveSource(ActiveSource{LogicalAddress: msg.Source, PhysicalAddress: pa})
	d.SetIsActiveSource(pa == d.svc.PhysicalAddress())
	d.switchInputOnNewActivePath(pa)
	return true
}

// HandleRequestActiveSource answers <Request Active Source> if this device is
// the active source.
func (d *Device) HandleRequestActiveSource(_ cec.Message) bool {
	d.loop.AssertOnLoop()

	if d.isActiveSource {
		d.svc.Send(cec.BuildActiveSource(d.address, d.svc.PhysicalAddress()))
	}
	return true
}

// HandleSetStreamPath processes <Set Stream Path>.
//
// When the path is this unit's own address, the hosted device elected by
// role priority claims the active source. Routing is re-evaluated by every
// device regardless of the election.
func (d *Device) HandleSetStreamPath(msg cec.Message) bool {
	d.loop.AssertOnLoop()

	pa := msg.PhysicalAddress()
	if pa == d.svc.PhysicalAddress() && elect(d.svc) == d {
		d.logInfo("elected active source by stream path", "requested_by", msg.Source.String())
		d.claimActiveSource()
	}
	d.switchInputOnNewActivePath(pa)
	return true
}

func (d *Device) handleGivePhysicalAddress(_ cec.Message) bool {
	d.svc.Send(cec.BuildReportPhysicalAddress(d.address, d.svc.PhysicalAddress(), d.devType))
	return true
}

func (d *Device) handleGiveDevicePowerStatus(msg cec.Message) bool {
	d.svc.Send(cec.BuildReportPowerStatus(d.address, msg.Source, d.svc.PowerStatus()))
	return true
}

// switchInputOnNewActivePath runs the routing capability, if any.
func (d *Device) switchInputOnNewActivePath(pa cec.PhysicalAddress) {
	if d.router != nil {
		d.router.SwitchInputOnNewActivePath(d, pa)
	}
}
