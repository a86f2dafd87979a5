package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/devalaya/temple-darshan/internal/domain"
	"github.com/devalaya/temple-darshan/internal/http/response"
	"github.com/devalaya/temple-darshan/internal/repo/postgres"
	"github.com/devalaya/temple-darshan/internal/service"
)

// BookingsHandler serves pass booking and lookup.
type BookingsHandler struct {
	capacity  service.CapacityService
	admission service.AdmissionService
	passes    postgres.PassRepository
}

func NewBookingsHandler(capacity service.CapacityService, admission service.AdmissionService, passes postgres.PassRepository) *BookingsHandler {
	return &BookingsHandler{capacity: capacity, admission: admission, passes: passes}
}

func (h *BookingsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.listByEmail)
	r.Get("/availability", h.availability)
	r.Get("/pass/{passID}", h.getPass)
	r.Delete("/{passID}", h.cancel)
	return r
}

type bookingResponse struct {
	Pass         domain.PassDTO        `json:"pass"`
	Availability *service.Availability `json:"availability"`
}

func (h *BookingsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.PassRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	pass, avail, err := h.capacity.BookPass(r.Context(), &in)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, bookingResponse{
		Pass:         pass.DTO(),
		Availability: avail,
	})
}

func (h *BookingsHandler) availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	templeID, err := strconv.ParseInt(q.Get("temple_id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "temple_id is required")
		return
	}
	visitors := 1
	if v := q.Get("visitors"); v != "" {
		visitors, err = strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, "visitors must be a number")
			return
		}
	}
	avail, err := h.capacity.CheckAvailability(r.Context(), templeID, q.Get("date"), q.Get("slot"), visitors)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, avail)
}

func (h *BookingsHandler) listByEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		response.BadRequest(w, "email is required")
		return
	}
	limit, offset := pageParams(r, 50)

	passes, err := h.passes.ListByEmail(r.Context(), email, limit, offset)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	out := make([]domain.PassDTO, 0, len(passes))
	for i := range passes {
		out = append(out, passes[i].DTO())
	}
	response.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"passes": out,
		"count":  len(out),
	})
}

func (h *BookingsHandler) getPass(w http.ResponseWriter, r *http.Request) {
	passID := chi.URLParam(r, "passID")
	pass, err := h.passes.FindByPassID(r.Context(), passID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if pass == nil {
		response.NotFound(w, "pass not found")
		return
	}
	response.WriteJSON(w, http.StatusOK, pass.DTO())
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *BookingsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	passID := chi.URLParam(r, "passID")
	if passID == "" {
		response.BadRequest(w, "pass id is required")
		return
	}

	var in cancelRequest
	_ = json.NewDecoder(r.Body).Decode(&in) // reason is optional

	if err := h.admission.Cancel(r.Context(), passID, in.Reason); err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "pass_id": passID})
}

func pageParams(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
