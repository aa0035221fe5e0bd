// Package cec implements the message transport for the CEC control bus.
//
// This package provides connectivity to a CEC adapter daemon and the frame
// codec used on the bus. It is the layer below the source-device protocol
// engine: it decodes and validates frames, rejects malformed ones, and
// delivers well-formed Messages in arrival order.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐
//	│  Source Device  │ Message  │  AdapterClient  │  socket
//	│  engine (unit)  │◄────────►│   (this pkg)    │◄────────► CEC adapter ──► Bus
//	└─────────────────┘          └─────────────────┘
//
// # Addresses
//
// Every device on the bus has a role-scoped logical address (0-15) and a
// 16-bit physical address describing its wiring position below the display:
//
//	pa, err := cec.ParsePhysicalAddress("1.2.0.0")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(pa) // "1.2.0.0"
//
// # Frames
//
// A frame is a header byte (initiator << 4 | destination), an opcode, and
// zero or more parameter bytes. ParseFrame validates the parameter length and
// addressing mode per opcode; callers above this package can assume
// well-formed messages.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package cec
