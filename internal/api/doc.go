// Package api implements the HTTP REST API and WebSocket server for the CEC
// service.
//
// This package provides:
//   - REST endpoints for hosted device status, one-touch-play and standby
//   - Read access to the learnt bus topology and the bus monitor's seen devices
//   - A WebSocket hub broadcasting active-source and one-touch-play events
//   - Prometheus metrics on /metrics
//   - Middleware stack (request ID, logging, metrics, recovery, CORS)
//
// # Architecture
//
// Handlers never touch device state directly. Every read and command goes
// through the unit, which runs it on the service loop and returns a
// snapshot. The WebSocket hub is registered as a unit observer; its
// callbacks run on the loop, so broadcasts only marshal and enqueue.
//
// # Graceful Degradation
//
// The bus monitor and metrics are optional. Endpoints backed by a missing
// component answer 503 instead of failing the whole server.
package api
