package source

import (
	"github.com/nerrad567/gray-logic-cec/internal/cec"
)

// RoutingCapability re-routes a switch device when a new active path is
// announced. Devices without one do nothing.
type RoutingCapability interface {
	SwitchInputOnNewActivePath(d *Device, pa cec.PhysicalAddress)
}

// PortSwitcher selects an input port on the switching hardware.
type PortSwitcher interface {
	SelectPort(d *Device, port Port) error
}

// PortSwitcherFunc adapts a function to PortSwitcher.
type PortSwitcherFunc func(d *Device, port Port) error

// SelectPort calls f(d, port).
func (f PortSwitcherFunc) SelectPort(d *Device, port Port) error {
	return f(d, port)
}

// SwitchRouter routes to the local port below which the new path lies.
type SwitchRouter struct {
	// Switcher drives the hardware. Optional: when nil only the recorded
	// port changes.
	Switcher PortSwitcher

	// Ports limits routing to the listed ports. Empty allows any port.
	Ports []Port
}

// Ensure SwitchRouter implements RoutingCapability.
var _ RoutingCapability = (*SwitchRouter)(nil)

// SwitchInputOnNewActivePath selects the port carrying pa. A path that is not
// below this unit, or that arrives on an unknown port, leaves the port
// unchanged. A path equal to the unit's own address selects PortHome.
func (r *SwitchRouter) SwitchInputOnNewActivePath(d *Device, pa cec.PhysicalAddress) {
	n, ok := pa.PortUnder(d.svc.PhysicalAddress())
	if !ok {
		return
	}

	port := Port(n)
	if port != PortHome && !r.allowed(port) {
		d.logWarn("active path on unconfigured port", "port", int(port), "path", pa.String())
		return
	}

	if r.Switcher != nil {
		if err := r.Switcher.SelectPort(d, port); err != nil {
			d.logWarn("port switch failed", "port", int(port), "error", err)
			return
		}
	}
	d.SetLocalActivePort(port)
}

func (r *SwitchRouter) allowed(port Port) bool {
	if len(r.Ports) == 0 {
		return true
	}
	for _, p := range r.Ports {
		if p == port {
			return true
		}
	}
	return false
}
