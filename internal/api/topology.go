package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-cec/internal/busmonitor"
	"github.com/nerrad567/gray-logic-cec/internal/cec"
)

// handleTopology lists the logical/physical address pairs learnt from the bus.
func (s *Server) handleTopology(w http.ResponseWriter, _ *http.Request) {
	if s.topology == nil {
		writeUnavailable(w, "topology not available")
		return
	}

	entries := s.topology.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": entries,
		"count":   len(entries),
	})
}

// handleListSeen lists every device the bus monitor has recorded.
func (s *Server) handleListSeen(w http.ResponseWriter, r *http.Request) {
	if s.seen == nil {
		writeUnavailable(w, "bus monitor disabled")
		return
	}

	devices, err := s.seen.Devices(r.Context())
	if err != nil {
		s.logger.Error("listing seen devices failed", "error", err)
		writeInternalError(w, "failed to list seen devices")
		return
	}
	if devices == nil {
		devices = []busmonitor.SeenDevice{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleForgetSeen removes one logical address from the bus monitor.
func (s *Server) handleForgetSeen(w http.ResponseWriter, r *http.Request) {
	if s.seen == nil {
		writeUnavailable(w, "bus monitor disabled")
		return
	}

	n, err := strconv.Atoi(chi.URLParam(r, "address"))
	if err != nil || n < 0 || n > int(cec.AddrUnregistered) {
		writeBadRequest(w, "address must be a logical address between 0 and 15")
		return
	}

	if err := s.seen.Forget(r.Context(), cec.LogicalAddress(n)); err != nil {
		s.logger.Error("forgetting seen device failed", "error", err, "logical_address", n)
		writeInternalError(w, "failed to forget device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
