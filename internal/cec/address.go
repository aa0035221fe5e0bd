package cec

import (
	"fmt"
	"strconv"
	"strings"
)

// LogicalAddress is the role-scoped identifier of a device on the bus (0-15).
type LogicalAddress uint8

// Logical addresses defined by the bus protocol.
const (
	AddrTV            LogicalAddress = 0
	AddrRecorder1     LogicalAddress = 1
	AddrRecorder2     LogicalAddress = 2
	AddrTuner1        LogicalAddress = 3
	AddrPlayback1     LogicalAddress = 4
	AddrAudioSystem   LogicalAddress = 5
	AddrTuner2        LogicalAddress = 6
	AddrTuner3        LogicalAddress = 7
	AddrPlayback2     LogicalAddress = 8
	AddrRecorder3     LogicalAddress = 9
	AddrTuner4        LogicalAddress = 10
	AddrPlayback3     LogicalAddress = 11
	AddrBackup1       LogicalAddress = 12
	AddrBackup2       LogicalAddress = 13
	AddrSpecificUse   LogicalAddress = 14
	AddrUnregistered  LogicalAddress = 15
	AddrBroadcast     LogicalAddress = 15
	maxLogicalAddress                = 15
)

var logicalAddressNames = [...]string{
	"tv", "recorder_1", "recorder_2", "tuner_1", "playback_1", "audio_system",
	"tuner_2", "tuner_3", "playback_2", "recorder_3", "tuner_4", "playback_3",
	"backup_1", "backup_2", "specific_use", "broadcast",
}

// String returns a short name for the logical address (e.g. "playback_1").
func (la LogicalAddress) String() string {
	if la > maxLogicalAddress {
		return fmt.Sprintf("invalid(%d)", uint8(la))
	}
	return logicalAddressNames[la]
}

// IsValid reports whether la fits in the 4-bit address space.
func (la LogicalAddress) IsValid() bool {
	return la <= maxLogicalAddress
}

// DeviceType is the role a logical device plays on the bus.
type DeviceType uint8

// Device types as carried in <Report Physical Address>.
const (
	DeviceTypeTV          DeviceType = 0
	DeviceTypeRecorder    DeviceType = 1
	DeviceTypeReserved    DeviceType = 2
	DeviceTypeTuner       DeviceType = 3
	DeviceTypePlayback    DeviceType = 4
	DeviceTypeAudioSystem DeviceType = 5
	DeviceTypePureSwitch  DeviceType = 6
	DeviceTypeProcessor   DeviceType = 7
)

var deviceTypeNames = map[DeviceType]string{
	DeviceTypeTV:          "tv",
	DeviceTypeRecorder:    "recorder",
	DeviceTypeReserved:    "reserved",
	DeviceTypeTuner:       "tuner",
	DeviceTypePlayback:    "playback",
	DeviceTypeAudioSystem: "audio_system",
	DeviceTypePureSwitch:  "pure_switch",
	DeviceTypeProcessor:   "processor",
}

// String returns the configuration name of the device type.
func (t DeviceType) String() string {
	if name, ok := deviceTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// ParseDeviceType converts a configuration name ("playback", "audio_system", ...)
// to a DeviceType.
func ParseDeviceType(s string) (DeviceType, error) {
	for t, name := range deviceTypeNames {
		if name == strings.ToLower(strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("cec: unknown device type %q", s)
}

// PhysicalAddress is the 16-bit topology position of a device below the display.
//
// Each nibble is one level of the HDMI tree:
//
//	0.0.0.0 = display
//	1.0.0.0 = device on display input 1
//	1.2.0.0 = device on input 2 of the device at 1.0.0.0
type PhysicalAddress uint16

// InvalidPhysicalAddress marks an unknown or unassigned physical address.
const InvalidPhysicalAddress PhysicalAddress = 0xFFFF

const (
	paLevels    = 4
	paNibble    = 0x0F
	paMaxDigit  = 15
	nibbleWidth = 4
)

// ParsePhysicalAddress parses a dotted physical address ("1.2.0.0").
//
// Parameters:
//   - s: Dotted address with four hexadecimal digits
//
// Returns:
//   - PhysicalAddress: Parsed address
//   - error: ErrInvalidPhysicalAddress if parsing fails
func ParsePhysicalAddress(s string) (PhysicalAddress, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != paLevels {
		return InvalidPhysicalAddress, fmt.Errorf("%w: expected a.b.c.d, got %q", ErrInvalidPhysicalAddress, s)
	}

	var pa uint16
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil || v > paMaxDigit {
			return InvalidPhysicalAddress, fmt.Errorf("%w: digit must be 0-f, got %q", ErrInvalidPhysicalAddress, p)
		}
		pa = pa<<nibbleWidth | uint16(v)
	}
	return PhysicalAddress(pa), nil
}

// String returns the dotted form, e.g. "1.2.0.0".
func (pa PhysicalAddress) String() string {
	v := uint16(pa)
	return fmt.Sprintf("%x.%x.%x.%x", (v>>12)&paNibble, (v>>8)&paNibble, (v>>4)&paNibble, v&paNibble)
}

// IsValid reports whether the address is assigned.
func (pa PhysicalAddress) IsValid() bool {
	return pa != InvalidPhysicalAddress
}

// MarshalText encodes the address in dotted form.
func (pa PhysicalAddress) MarshalText() ([]byte, error) {
	if !pa.IsValid() {
		return []byte(""), nil
	}
	return []byte(pa.String()), nil
}

// UnmarshalText parses the dotted form. An empty string yields
// InvalidPhysicalAddress.
func (pa *PhysicalAddress) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*pa = InvalidPhysicalAddress
		return nil
	}
	v, err := ParsePhysicalAddress(string(text))
	if err != nil {
		return err
	}
	*pa = v
	return nil
}

// nibble returns the digit at level i (0 = most significant).
func (pa PhysicalAddress) nibble(i int) int {
	shift := (paLevels - 1 - i) * nibbleWidth
	return int(pa>>shift) & paNibble
}

// depth returns the number of levels used by pa (0 for the display).
func (pa PhysicalAddress) depth() int {
	for i := 0; i < paLevels; i++ {
		if pa.nibble(i) == 0 {
			return i
		}
	}
	return paLevels
}

// PortUnder returns the input port of parent through which pa is reached.
//
// Returns port 0 when pa equals parent itself. Returns ok=false when pa is
// not in the subtree below parent, or either address is invalid.
//
// Example:
//
//	child, _ := ParsePhysicalAddress("1.2.3.0")
//	parent, _ := ParsePhysicalAddress("1.0.0.0")
//	port, ok := child.PortUnder(parent) // 2, true
func (pa PhysicalAddress) PortUnder(parent PhysicalAddress) (int, bool) {
	if !pa.IsValid() || !parent.IsValid() {
		return 0, false
	}
	if pa == parent {
		return 0, true
	}

	d := parent.depth()
	if d >= paLevels {
		return 0, false
	}
	for i := 0; i < d; i++ {
		if pa.nibble(i) != parent.nibble(i) {
			return 0, false
		}
	}

	port := pa.nibble(d)
	if port == 0 {
		return 0, false
	}
	return port, true
}
