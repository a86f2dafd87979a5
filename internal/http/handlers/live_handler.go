package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/devalaya/temple-darshan/internal/http/response"
	"github.com/devalaya/temple-darshan/internal/service"
	"github.com/devalaya/temple-darshan/pkg/logger"
)

// LiveHandler serves the gate devices and the occupancy dashboard.
type LiveHandler struct {
	admission service.AdmissionService
	reconcile service.ReconcileService
}

func NewLiveHandler(admission service.AdmissionService, reconcile service.ReconcileService) *LiveHandler {
	return &LiveHandler{admission: admission, reconcile: reconcile}
}

func (h *LiveHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/entry", h.entry)
	r.Post("/exit", h.exit)
	r.Get("/", h.statusAll)
	r.Get("/{templeID}", h.statusOne)
	r.Get("/{templeID}/entries", h.entries)
	r.Get("/{templeID}/stats", h.stats)
	r.Post("/reset/{templeID}", h.reset)
	return r
}

type scanRequest struct {
	TempleID int64  `json:"temple_id"`
	PassID   string `json:"pass_id"`
}

func (h *LiveHandler) entry(w http.ResponseWriter, r *http.Request) {
	var in scanRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	result, err := h.admission.RecordEntry(r.Context(), in.TempleID, in.PassID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

func (h *LiveHandler) exit(w http.ResponseWriter, r *http.Request) {
	var in scanRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	result, err := h.admission.RecordExit(r.Context(), in.TempleID, in.PassID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

func (h *LiveHandler) statusAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.admission.LiveStatusAll(r.Context())
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, summary)
}

func (h *LiveHandler) statusOne(w http.ResponseWriter, r *http.Request) {
	templeID, err := templeIDParam(r)
	if err != nil {
		response.BadRequest(w, "invalid temple id")
		return
	}
	st, err := h.admission.LiveStatus(r.Context(), templeID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, st)
}

func (h *LiveHandler) entries(w http.ResponseWriter, r *http.Request) {
	templeID, err := templeIDParam(r)
	if err != nil {
		response.BadRequest(w, "invalid temple id")
		return
	}
	passes, err := h.admission.CurrentEntries(r.Context(), templeID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"temple_id": templeID,
		"count":     len(passes),
		"entries":   passes,
	})
}

func (h *LiveHandler) stats(w http.ResponseWriter, r *http.Request) {
	templeID, err := templeIDParam(r)
	if err != nil {
		response.BadRequest(w, "invalid temple id")
		return
	}
	stats, err := h.admission.DailyStats(r.Context(), templeID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, stats)
}

// reset is the admin override: rebuild a temple's counter from the ledger.
func (h *LiveHandler) reset(w http.ResponseWriter, r *http.Request) {
	templeID, err := templeIDParam(r)
	if err != nil {
		response.BadRequest(w, "invalid temple id")
		return
	}
	restored, err := h.reconcile.ReconcileTemple(r.Context(), templeID, "manual_reset")
	if err != nil {
		response.DomainError(w, err)
		return
	}
	logger.InfoContext(r.Context(), "manual counter reset", "temple_id", templeID, "live_count", restored)
	response.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"temple_id":  templeID,
		"live_count": restored,
	})
}

func templeIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "templeID"), 10, 64)
}
