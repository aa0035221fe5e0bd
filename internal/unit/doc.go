// Package unit hosts the logical CEC devices of one physical unit.
//
// A Unit owns the service loop, the pending-action table, the connection to
// the adapter and the learnt bus topology. Frames from the adapter are posted
// to the loop and fanned out to the hosted devices; messages the devices send
// are queued to a sender goroutine so that the loop never blocks on I/O.
//
// Public methods are safe for concurrent use; they hop onto the loop
// internally.
package unit
