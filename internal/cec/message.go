package cec

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// Opcode identifies the command carried by a frame.
type Opcode uint8

// Opcodes handled by the source-device engine.
const (
	OpFeatureAbort          Opcode = 0x00
	OpImageViewOn           Opcode = 0x04
	OpTextViewOn            Opcode = 0x0D
	OpStandby               Opcode = 0x36
	OpRoutingChange         Opcode = 0x80
	OpRoutingInformation    Opcode = 0x81
	OpActiveSource          Opcode = 0x82
	OpGivePhysicalAddress   Opcode = 0x83
	OpReportPhysicalAddress Opcode = 0x84
	OpRequestActiveSource   Opcode = 0x85
	OpSetStreamPath         Opcode = 0x86
	OpGiveDevicePowerStatus Opcode = 0x8F
	OpReportPowerStatus     Opcode = 0x90
	OpInactiveSource        Opcode = 0x9D
)

// addressing describes where an opcode may legally be sent.
type addressing uint8

const (
	directOnly addressing = 1 << iota
	broadcastOnly
	either = directOnly | broadcastOnly
)

type opcodeRule struct {
	name      string
	minParams int
	mode      addressing
}

var opcodeRules = map[Opcode]opcodeRule{
	OpFeatureAbort:          {"feature_abort", 2, directOnly},
	OpImageViewOn:           {"image_view_on", 0, directOnly},
	OpTextViewOn:            {"text_view_on", 0, directOnly},
	OpStandby:               {"standby", 0, either},
	OpRoutingChange:         {"routing_change", 4, broadcastOnly},
	OpRoutingInformation:    {"routing_information", 2, broadcastOnly},
	OpActiveSource:          {"active_source", 2, broadcastOnly},
	OpGivePhysicalAddress:   {"give_physical_address", 0, directOnly},
	OpReportPhysicalAddress: {"report_physical_address", 3, broadcastOnly},
	OpRequestActiveSource:   {"request_active_source", 0, broadcastOnly},
	OpSetStreamPath:         {"set_stream_path", 2, broadcastOnly},
	OpGiveDevicePowerStatus: {"give_device_power_status", 0, directOnly},
	OpReportPowerStatus:     {"report_power_status", 1, either},
	OpInactiveSource:        {"inactive_source", 2, directOnly},
}

// String returns the snake_case opcode name, or its hex value if unknown.
func (o Opcode) String() string {
	if r, ok := opcodeRules[o]; ok {
		return r.name
	}
	return fmt.Sprintf("0x%02X", uint8(o))
}

// PowerStatus is the parameter of <Report Power Status>.
type PowerStatus uint8

// Power states reported on the bus.
const (
	PowerOn                 PowerStatus = 0
	PowerStandby            PowerStatus = 1
	PowerTransientToOn      PowerStatus = 2
	PowerTransientToStandby PowerStatus = 3
	PowerUnknown            PowerStatus = 0xFF
)

// String returns a human-readable power state.
func (p PowerStatus) String() string {
	switch p {
	case PowerOn:
		return "on"
	case PowerStandby:
		return "standby"
	case PowerTransientToOn:
		return "transient_to_on"
	case PowerTransientToStandby:
		return "transient_to_standby"
	default:
		return "unknown"
	}
}

// IsStandbyOrTransient reports whether the device is not fully on.
func (p PowerStatus) IsStandbyOrTransient() bool {
	return p == PowerStandby || p == PowerTransientToOn || p == PowerTransientToStandby
}

// AbortReason is the second parameter of <Feature Abort>.
type AbortReason uint8

// Feature abort reasons.
const (
	AbortUnrecognizedOpcode AbortReason = 0
	AbortNotInCorrectMode   AbortReason = 1
	AbortCannotProvide      AbortReason = 2
	AbortInvalidOperand     AbortReason = 3
	AbortRefused            AbortReason = 4
)

const (
	headerSize = 2 // header byte + opcode
	paSize     = 2
)

// Message is a decoded bus frame.
type Message struct {
	// Source is the initiator's logical address.
	Source LogicalAddress

	// Destination is the follower's logical address, or AddrBroadcast.
	Destination LogicalAddress

	// Opcode is the command.
	Opcode Opcode

	// Params holds the operand bytes (may be empty).
	Params []byte

	// Timestamp records when the message was received or created.
	Timestamp time.Time
}

// NewMessage creates a message with the timestamp set to now.
func NewMessage(src, dst LogicalAddress, op Opcode, params ...byte) Message {
	p := make([]byte, len(params))
	copy(p, params)
	return Message{
		Source:      src,
		Destination: dst,
		Opcode:      op,
		Params:      p,
		Timestamp:   time.Now(),
	}
}

// ParseFrame decodes a raw frame and validates it.
//
// Frame layout:
//
//	Byte 0:  initiator (high nibble) | destination (low nibble)
//	Byte 1:  opcode
//	Byte 2+: operands
//
// Parameters:
//   - data: Raw frame bytes from the adapter
//
// Returns:
//   - Message: Decoded message with timestamp set to now
//   - error: ErrInvalidMessage if the frame is malformed
func ParseFrame(data []byte) (Message, error) {
	if len(data) < headerSize {
		return Message{}, fmt.Errorf("%w: too short (%d bytes, need at least %d)", ErrInvalidMessage, len(data), headerSize)
	}

	msg := NewMessage(
		LogicalAddress(data[0]>>nibbleWidth),
		LogicalAddress(data[0]&paNibble),
		Opcode(data[1]),
		data[headerSize:]...,
	)
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Validate checks the operand length and addressing mode for known opcodes.
// Unknown opcodes are accepted so that they can be answered with
// <Feature Abort> by the receiver.
func (m Message) Validate() error {
	if !m.Source.IsValid() || !m.Destination.IsValid() {
		return fmt.Errorf("%w: logical address out of range", ErrInvalidMessage)
	}

	rule, ok := opcodeRules[m.Opcode]
	if !ok {
		return nil
	}
	if len(m.Params) < rule.minParams {
		return fmt.Errorf("%w: %s needs %d operand bytes, got %d", ErrInvalidMessage, rule.name, rule.minParams, len(m.Params))
	}
	if m.IsBroadcast() && rule.mode&broadcastOnly == 0 {
		return fmt.Errorf("%w: %s must be directly addressed", ErrInvalidMessage, rule.name)
	}
	if !m.IsBroadcast() && rule.mode&directOnly == 0 {
		return fmt.Errorf("%w: %s must be broadcast", ErrInvalidMessage, rule.name)
	}
	return nil
}

// Encode returns the frame bytes for transmission.
func (m Message) Encode() []byte {
	buf := make([]byte, headerSize+len(m.Params))
	buf[0] = byte(m.Source)<<nibbleWidth | byte(m.Destination)&paNibble
	buf[1] = byte(m.Opcode)
	copy(buf[headerSize:], m.Params)
	return buf
}

// IsBroadcast reports whether the message is sent to all devices.
func (m Message) IsBroadcast() bool {
	return m.Destination == AddrBroadcast
}

// PhysicalAddress returns the physical address carried in the first two
// operand bytes, or InvalidPhysicalAddress if there are fewer.
func (m Message) PhysicalAddress() PhysicalAddress {
	if len(m.Params) < paSize {
		return InvalidPhysicalAddress
	}
	return PhysicalAddress(binary.BigEndian.Uint16(m.Params[:paSize]))
}

// String returns a human-readable representation of the message.
//
// Example: "4->15 active_source [11 00]"
func (m Message) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d->%d %s", m.Source, m.Destination, m.Opcode)
	if len(m.Params) > 0 {
		fmt.Fprintf(&sb, " [% X]", m.Params)
	}
	return sb.String()
}

func paBytes(pa PhysicalAddress) []byte {
	b := make([]byte, paSize)
	binary.BigEndian.PutUint16(b, uint16(pa))
	return b
}

// BuildActiveSource builds the <Active Source> broadcast.
func BuildActiveSource(src LogicalAddress, pa PhysicalAddress) Message {
	return NewMessage(src, AddrBroadcast, OpActiveSource, paBytes(pa)...)
}

// BuildRequestActiveSource builds the <Request Active Source> broadcast.
func BuildRequestActiveSource(src LogicalAddress) Message {
	return NewMessage(src, AddrBroadcast, OpRequestActiveSource)
}

// BuildSetStreamPath builds the <Set Stream Path> broadcast.
func BuildSetStreamPath(src LogicalAddress, pa PhysicalAddress) Message {
	return NewMessage(src, AddrBroadcast, OpSetStreamPath, paBytes(pa)...)
}

// BuildTextViewOn builds <Text View On> for the display.
func BuildTextViewOn(src, dst LogicalAddress) Message {
	return NewMessage(src, dst, OpTextViewOn)
}

// BuildImageViewOn builds <Image View On> for the display.
func BuildImageViewOn(src, dst LogicalAddress) Message {
	return NewMessage(src, dst, OpImageViewOn)
}

// BuildStandby builds <Standby>.
func BuildStandby(src, dst LogicalAddress) Message {
	return NewMessage(src, dst, OpStandby)
}

// BuildGiveDevicePowerStatus builds the power status query.
func BuildGiveDevicePowerStatus(src, dst LogicalAddress) Message {
	return NewMessage(src, dst, OpGiveDevicePowerStatus)
}

// BuildReportPowerStatus builds the power status reply.
func BuildReportPowerStatus(src, dst LogicalAddress, status PowerStatus) Message {
	return NewMessage(src, dst, OpReportPowerStatus, byte(status))
}

// BuildFeatureAbort builds <Feature Abort> for a rejected opcode.
func BuildFeatureAbort(src, dst LogicalAddress, op Opcode, reason AbortReason) Message {
	return NewMessage(src, dst, OpFeatureAbort, byte(op), byte(reason))
}

// BuildReportPhysicalAddress builds the <Report Physical Address> broadcast.
func BuildReportPhysicalAddress(src LogicalAddress, pa PhysicalAddress, t DeviceType) Message {
	return NewMessage(src, AddrBroadcast, OpReportPhysicalAddress, append(paBytes(pa), byte(t))...)
}
