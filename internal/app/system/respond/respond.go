// internal/app/system/respond/respond.go
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Kind    apperr.Kind    `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// NoContent writes a bare 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict,
		apperr.KindDuplicateEnrollment,
		apperr.KindActivityFullOrClosed,
		apperr.KindInvalidState:
		return http.StatusConflict
	case apperr.KindCapacityViolation, apperr.KindPendingAttendance:
		return http.StatusUnprocessableEntity
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as an ErrorBody. Unclassified errors are logged and
// reported as a generic internal error.
func Error(w http.ResponseWriter, log *zap.Logger, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		JSON(w, http.StatusInternalServerError, ErrorBody{
			Kind:    apperr.KindInternal,
			Message: "internal server error",
		})
		return
	}
	JSON(w, StatusFor(ae.Kind), ErrorBody{
		Kind:    ae.Kind,
		Message: ae.Error(),
		Details: ae.Details,
	})
}

// DecodeJSON decodes the request body into v. Unknown fields are ignored.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("body", "request body must be valid JSON")
	}
	return nil
}

// PathID parses the chi URL parameter name as an ObjectID.
func PathID(r *http.Request, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, name))
	if err != nil {
		return primitive.NilObjectID, apperr.Validation(name, name+" must be a valid id.")
	}
	return id, nil
}
