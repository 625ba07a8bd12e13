package handlers

import (
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"

	"github.com/bearound/booking-funnel/internal/availability"
	"github.com/bearound/booking-funnel/internal/booking"
	"github.com/bearound/booking-funnel/internal/calendar"
	"github.com/bearound/booking-funnel/internal/funnel"
	"github.com/bearound/booking-funnel/internal/http/middleware"
	"github.com/bearound/booking-funnel/internal/payments"
	"github.com/bearound/booking-funnel/pkg/logging"
)

// FunnelHandler exposes the booking funnel over JSON.
type FunnelHandler struct {
	ctrl          *funnel.Controller
	signingSecret string
	tokenTTL      time.Duration
	logger        *logging.Logger
}

func NewFunnelHandler(ctrl *funnel.Controller, signingSecret string, tokenTTL time.Duration, logger *logging.Logger) *FunnelHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if tokenTTL <= 0 {
		tokenTTL = 2 * time.Hour
	}
	return &FunnelHandler{ctrl: ctrl, signingSecret: signingSecret, tokenTTL: tokenTTL, logger: logger}
}

type createSessionRequest struct {
	Experience string             `json:"experience"`
	Structure  string             `json:"structure,omitempty"`
	Timezone   string             `json:"timezone,omitempty"`
	Month      availability.Month `json:"month,omitempty"`
	Wait       bool               `json:"wait,omitempty"`
}

type createSessionResponse struct {
	Session *funnel.Session `json:"session"`
	Token   string          `json:"token,omitempty"`
}

type navigateRequest struct {
	Month availability.Month `json:"month"`
	Wait  bool               `json:"wait,omitempty"`
}

type calendarResponse struct {
	Month    availability.Month `json:"month"`
	Status   calendar.Status    `json:"status"`
	Today    civil.Date         `json:"today"`
	Previous availability.Month `json:"previous"`
	Next     availability.Month `json:"next"`
	Days     []calendar.Day     `json:"days"`
}

// CreateSession handles POST /api/sessions.
func (h *FunnelHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s, err := h.ctrl.Start(r.Context(), funnel.StartRequest{
		ExperienceRef: req.Experience,
		StructureSlug: req.Structure,
		Timezone:      req.Timezone,
		Month:         req.Month,
		Wait:          req.Wait,
	})
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	resp := createSessionResponse{Session: s}
	if h.signingSecret != "" {
		token, err := middleware.IssueSessionToken(h.signingSecret, s.ID, h.tokenTTL)
		if err != nil {
			writeError(w, h.logger, err, nil)
			return
		}
		resp.Token = token
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetSession handles GET /api/sessions/{id}.
func (h *FunnelHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.ctrl.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// DeleteSession handles DELETE /api/sessions/{id}.
func (h *FunnelHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCalendar handles GET /api/sessions/{id}/calendar.
func (h *FunnelHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	s, err := h.ctrl.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	h.writeCalendar(w, s)
}

// NavigateCalendar handles POST /api/sessions/{id}/calendar.
func (h *FunnelHandler) NavigateCalendar(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s, err := h.ctrl.NavigateMonth(r.Context(), chi.URLParam(r, "id"), req.Month, req.Wait)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	h.writeCalendar(w, s)
}

// UpdateDraft handles PATCH /api/sessions/{id}/draft.
func (h *FunnelHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	var patch booking.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if patch.Empty() {
		jsonError(w, "empty draft update", http.StatusBadRequest)
		return
	}
	s, err := h.ctrl.UpdateDraft(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// SubmitIntent handles POST /api/sessions/{id}/intent.
func (h *FunnelHandler) SubmitIntent(w http.ResponseWriter, r *http.Request) {
	s, err := h.ctrl.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err, s)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Confirm handles POST /api/sessions/{id}/confirm.
func (h *FunnelHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var input payments.MethodInput
	if err := decodeJSON(w, r, &input); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	input.PaymentMethod = strings.TrimSpace(input.PaymentMethod)
	s, err := h.ctrl.Confirm(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeError(w, h.logger, err, s)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Restart handles POST /api/sessions/{id}/restart.
func (h *FunnelHandler) Restart(w http.ResponseWriter, r *http.Request) {
	s, err := h.ctrl.Restart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *FunnelHandler) writeCalendar(w http.ResponseWriter, s *funnel.Session) {
	loc, err := s.Location()
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	gate := h.ctrl.Gate()
	view := s.Calendar
	writeJSON(w, http.StatusOK, calendarResponse{
		Month:    view.Month,
		Status:   view.Status,
		Today:    gate.Today(loc),
		Previous: view.Month.Prev(),
		Next:     view.Month.Next(),
		Days:     gate.Grid(view, loc),
	})
}
