package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bearound/booking-funnel/internal/booking"
	"github.com/bearound/booking-funnel/internal/funnel"
	"github.com/bearound/booking-funnel/pkg/logging"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error   string           `json:"error"`
	Kind    funnel.ErrorKind `json:"kind,omitempty"`
	Field   string           `json:"field,omitempty"`
	Session *funnel.Session  `json:"session,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind funnel.ErrorKind) int {
	switch kind {
	case funnel.KindValidation:
		return http.StatusUnprocessableEntity
	case funnel.KindNetwork:
		return http.StatusBadGateway
	case funnel.KindPayment:
		return http.StatusPaymentRequired
	case funnel.KindState:
		return http.StatusConflict
	case funnel.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError classifies err and writes the user message. s, when set, is the
// session state after the failed operation.
func writeError(w http.ResponseWriter, logger *logging.Logger, err error, s *funnel.Session) {
	kind, msg := funnel.Classify(err)
	status := StatusForKind(kind)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		logger.Error("request failed", "error", err)
	}
	resp := errorResponse{Error: msg, Kind: kind, Session: s}
	var verr *booking.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
