package source

import (
	"fmt"

	"github.com/nerrad567/gray-logic-cec/internal/cec"
)

// ActiveSource is the bus-wide claim of which device drives the display.
// Two values are equal iff both addresses match; it is always replaced as a
// whole.
type ActiveSource struct {
	LogicalAddress  cec.LogicalAddress  `json:"logical_address"`
	PhysicalAddress cec.PhysicalAddress `json:"physical_address"`
}

// NoActiveSource is the value held before any announcement has been seen.
var NoActiveSource = ActiveSource{
	LogicalAddress:  cec.AddrUnregistered,
	PhysicalAddress: cec.InvalidPhysicalAddress,
}

// IsValid reports whether both addresses are assigned.
func (a ActiveSource) IsValid() bool {
	return a.LogicalAddress != cec.AddrUnregistered && a.PhysicalAddress.IsValid()
}

// String returns e.g. "playback_1@1.1.0.0".
func (a ActiveSource) String() string {
	if !a.IsValid() {
		return "none"
	}
	return fmt.Sprintf("%s@%s", a.LogicalAddress, a.PhysicalAddress)
}

// Port is a local input port id. PortHome selects the unit's own source.
type Port int

// PortHome is the default port of a freshly created device.
const PortHome Port = 0
