// Package source implements the local source-device role of a CEC unit.
//
// A physical unit hosts one or more logical devices (playback, audio system,
// tuner, ...). Each Device keeps its own copy of the bus-wide active source,
// a flag telling whether it is the active source itself, and, for switch
// devices, the currently selected input port.
//
// # Protocol handling
//
// Device.Dispatch handles the routing-control opcodes:
//
//   - <Active Source>: records the announced (logical, physical) pair if it
//     differs from the current one, recomputes the local flag and re-routes.
//   - <Request Active Source>: answers with <Active Source> when this device
//     is the active source.
//   - <Set Stream Path>: when the path names this unit, the hosted device
//     elected by role priority (playback before audio system) claims the
//     active source; every device re-routes.
//
// # One-touch-play
//
// Device.OneTouchPlay wakes the display and claims the active source. Calls
// made while a sequence is in flight join it and receive the same result.
//
// # Thread Safety
//
// Everything except the local active port accessors must run on the unit's
// service loop (see package action); violations panic with
// action.ErrOffLoop.
package source
