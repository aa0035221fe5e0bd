package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-cec/internal/action"
	"github.com/nerrad567/gray-logic-cec/internal/source"
	"github.com/nerrad567/gray-logic-cec/internal/unit"
)

const (
	// statusTimeout bounds snapshot reads from the service loop.
	statusTimeout = 2 * time.Second

	// oneTouchPlayTimeout bounds how long a request waits for the sequence.
	// The sequence has its own deadline, so this only fires if the loop stalls.
	oneTouchPlayTimeout = 30 * time.Second
)

// oneTouchPlayResponse is returned by POST /devices/{id}/one-touch-play.
type oneTouchPlayResponse struct {
	DeviceID   string `json:"device_id"`
	Result     string `json:"result"`
	ResultCode int    `json:"result_code"`
}

// handleListDevices returns a snapshot of every hosted device.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	st, err := s.unit.Status(ctx)
	if err != nil {
		s.writeUnitError(w, err)
		return
	}

	devices := st.Devices
	if devices == nil {
		devices = []unit.DeviceStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a snapshot of one hosted device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	st, err := s.unit.DeviceStatus(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeUnitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleOneTouchPlay runs one-touch-play and waits for the outcome.
// A request that arrives while a sequence is running joins it.
func (s *Server) handleOneTouchPlay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), oneTouchPlayTimeout)
	defer cancel()

	result, err := s.unit.OneTouchPlay(ctx, id)
	if err != nil {
		s.writeUnitError(w, err)
		return
	}

	status := http.StatusOK
	switch result {
	case source.ResultSuccess:
	case source.ResultTimeout:
		status = http.StatusGatewayTimeout
	default:
		status = http.StatusConflict
	}

	s.logger.Info("one touch play via api", "device_id", id, "result", result.String())
	writeJSON(w, status, oneTouchPlayResponse{
		DeviceID:   id,
		Result:     result.String(),
		ResultCode: int(result),
	})
}

// handleStandby asks the display to enter standby.
func (s *Server) handleStandby(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	if err := s.unit.Standby(ctx, id); err != nil {
		s.writeUnitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"device_id": id,
		"status":    "sent",
	})
}

// writeUnitError maps unit and loop errors to HTTP responses.
func (s *Server) writeUnitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, unit.ErrUnknownDevice):
		writeNotFound(w, "device not found")
	case errors.Is(err, action.ErrLoopClosed):
		writeUnavailable(w, "unit is stopped")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "timed out waiting for the unit")
	default:
		s.logger.Error("unit request failed", "error", err)
		writeInternalError(w, "internal server error")
	}
}
