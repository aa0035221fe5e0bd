package source

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-cec/internal/cec"
)

func TestSwitchRouter(t *testing.T) {
	tests := []struct {
		name     string
		path     cec.PhysicalAddress
		ports    []Port
		failWith error
		wantPort Port
		wantCall bool
	}{
		{name: "direct child", path: 0x1200, wantPort: 2, wantCall: true},
		{name: "grandchild", path: 0x1310, wantPort: 3, wantCall: true},
		{name: "own address selects home", path: 0x1000, wantPort: PortHome, wantCall: true},
		{name: "other branch unchanged", path: 0x2000, wantPort: 4},
		{name: "display unchanged", path: 0x0000, wantPort: 4},
		{name: "unconfigured port unchanged", path: 0x1500, ports: []Port{1, 2, 3}, wantPort: 4},
		{name: "switch failure unchanged", path: 0x1200, failWith: errors.New("relay stuck"), wantPort: 4, wantCall: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 0x1000)

			var selected []Port
			router := &SwitchRouter{
				Ports: tt.ports,
				Switcher: PortSwitcherFunc(func(_ *Device, p Port) error {
					selected = append(selected, p)
					return tt.failWith
				}),
			}
			d := h.addDevice(Config{
				Type:           cec.DeviceTypeAudioSystem,
				LogicalAddress: cec.AddrAudioSystem,
				SwitchDevice:   true,
				Router:         router,
			})
			d.SetLocalActivePort(4)

			h.run(func() {
				d.Dispatch(cec.BuildActiveSource(cec.AddrPlayback1, tt.path))
			})

			if got := d.LocalActivePort(); got != tt.wantPort {
				t.Errorf("LocalActivePort() = %d, want %d", got, tt.wantPort)
			}
			if tt.wantCall && (len(selected) != 1 || selected[0] != Port(mustPort(t, tt.path))) {
				t.Errorf("switcher calls = %v", selected)
			}
			if !tt.wantCall && len(selected) != 0 {
				t.Errorf("switcher called with %v, want no call", selected)
			}
		})
	}
}

func mustPort(t *testing.T, pa cec.PhysicalAddress) int {
	t.Helper()
	p, ok := pa.PortUnder(0x1000)
	if !ok {
		t.Fatalf("%s is not below 1.0.0.0", pa)
	}
	return p
}

func TestSwitchRouterReroutesOnRepeatedPath(t *testing.T) {
	h := newHarness(t, 0x1000)

	calls := 0
	d := h.addDevice(Config{
		Type:           cec.DeviceTypeAudioSystem,
		LogicalAddress: cec.AddrAudioSystem,
		SwitchDevice:   true,
		Router: &SwitchRouter{Switcher: PortSwitcherFunc(func(*Device, Port) error {
			calls++
			return nil
		})},
	})

	h.run(func() {
		d.Dispatch(cec.BuildSetStreamPath(cec.AddrTV, 0x1200))
		d.Dispatch(cec.BuildSetStreamPath(cec.AddrTV, 0x1200))
	})

	if calls != 2 {
		t.Errorf("switcher calls = %d, want 2", calls)
	}
	h.run(func() {
		if len(h.obs.ports) != 1 || h.obs.ports[0] != 2 {
			t.Errorf("port notifications = %v, want [2]", h.obs.ports)
		}
	})
}
