package api

import (
	"net/http"
	"time"

	respond "github.com/hudson-blanoire/chroma-server/internal/api/respond"
	"github.com/hudson-blanoire/chroma-server/internal/services"
)

// Version is the Chroma API version this server reports.
const Version = "0.5.0"

type SystemHandler struct {
	records *services.RecordService
}

func NewSystemHandler(records *services.RecordService) *SystemHandler {
	return &SystemHandler{records: records}
}

// Heartbeat GET /api/v1/heartbeat
func (h *SystemHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, map[string]int64{"nanosecond heartbeat": time.Now().UnixNano()})
}

// Version GET /api/v1/version
func (h *SystemHandler) Version(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, Version)
}

// PreFlightChecks GET /api/v1/pre-flight-checks
func (h *SystemHandler) PreFlightChecks(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, map[string]int{"max_batch_size": h.records.MaxBatchSize()})
}

// Reset POST /api/v1/reset
func (h *SystemHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.records.Reset(r.Context()); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, true)
}
