// Package busmonitor records which devices have been seen on the CEC bus.
//
// A Recorder observes every inbound frame through the unit's observer
// hooks and upserts the sender into the cec_devices table: logical
// address, last known physical address and device type (from
// <Report Physical Address>), first/last seen and a frame count.
//
// Writes happen on the recorder's own goroutine behind a bounded queue so the
// service loop never waits on SQLite; when the queue is full the sighting is
// dropped and counted.
//
// The table is discovery data for diagnostics (GET /api/v1/topology/seen),
// not routing state: nothing reads it back into the protocol engine.
package busmonitor
