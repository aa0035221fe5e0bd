package api

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	AdapterConnected bool   `json:"adapter_connected"`
	MQTTConnected    *bool  `json:"mqtt_connected,omitempty"`
	WebSocketClients int    `json:"websocket_clients"`
	PendingActions   int    `json:"pending_actions"`
}

// handleHealth reports whether the unit, adapter and MQTT are up.
// A degraded service still answers 200; an unresponsive unit answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	if s.hub != nil {
		resp.WebSocketClients = s.hub.ClientCount()
	}

	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	st, err := s.unit.Status(ctx)
	if err != nil {
		resp.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.AdapterConnected = st.Connected
	resp.PendingActions = st.PendingActions
	if !st.Connected {
		resp.Status = "degraded"
	}

	if s.mqtt != nil {
		connected := s.mqtt.IsConnected()
		resp.MQTTConnected = &connected
		if !connected {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStatus returns the full unit snapshot, adapter statistics included.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	st, err := s.unit.Status(ctx)
	if err != nil {
		s.writeUnitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
