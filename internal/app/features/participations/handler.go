// internal/app/features/participations/handler.go
package participations

import (
	"net/http"

	"github.com/maishoras/maishoras/internal/app/lifecycle"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/auditlog"
	"github.com/maishoras/maishoras/internal/app/system/authz"
	"github.com/maishoras/maishoras/internal/app/system/inputval"
	"github.com/maishoras/maishoras/internal/app/system/respond"
	"github.com/maishoras/maishoras/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Handler serves enrollment listings and attendance addressed by enrollment.
type Handler struct {
	Ctl      *lifecycle.Controller
	AuditLog *auditlog.Logger
	Log      *zap.Logger
}

// NewHandler creates a new participations Handler.
func NewHandler(ctl *lifecycle.Controller, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{Ctl: ctl, AuditLog: audit, Log: logger}
}

type validateRequest struct {
	Status string `json:"status" validate:"required"`
}

// Validate handles PUT /participations/{id}/validate, where id is the
// enrollment.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	_, _, uid, ok := authz.UserCtx(r)
	if !ok {
		respond.Error(w, h.Log, apperr.Unauthorized("authentication required"))
		return
	}
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	var req validateRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	if err := inputval.Validate(req).Err(); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "validate participation")
	defer cancel()

	e, err := h.Ctl.RecordAttendanceByEnrollment(ctx, id, uid, req.Status)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	h.AuditLog.AttendanceRecorded(ctx, r, uid, e.UserID, e.ActivityID, e.AttendanceStatus)
	respond.JSON(w, http.StatusOK, e)
}

// Mine handles GET /participations/my.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	_, _, uid, ok := authz.UserCtx(r)
	if !ok {
		respond.Error(w, h.Log, apperr.Unauthorized("authentication required"))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list own enrollments")
	defer cancel()

	out, err := h.Ctl.ListEnrollmentsForUser(ctx, uid)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

// ByActivity handles GET /participations/activity/{id}.
func (h *Handler) ByActivity(w http.ResponseWriter, r *http.Request) {
	_, _, uid, ok := authz.UserCtx(r)
	if !ok {
		respond.Error(w, h.Log, apperr.Unauthorized("authentication required"))
		return
	}
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list activity enrollments")
	defer cancel()

	out, err := h.Ctl.ListEnrollmentsForActivity(ctx, id, uid)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}
