// internal/app/features/activities/handler.go
package activities

import (
	"net/http"

	"github.com/maishoras/maishoras/internal/app/lifecycle"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/auditlog"
	"github.com/maishoras/maishoras/internal/app/system/authz"
	"github.com/maishoras/maishoras/internal/app/system/inputval"
	"github.com/maishoras/maishoras/internal/app/system/normalize"
	"github.com/maishoras/maishoras/internal/app/system/respond"
	"github.com/maishoras/maishoras/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler exposes the activity lifecycle over JSON.
type Handler struct {
	Ctl      *lifecycle.Controller
	AuditLog *auditlog.Logger
	Log      *zap.Logger
}

// NewHandler creates a new activities Handler.
func NewHandler(ctl *lifecycle.Controller, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{Ctl: ctl, AuditLog: audit, Log: logger}
}

type attendanceRequest struct {
	UserID string `json:"userId" validate:"required,objectid"`
	Status string `json:"status" validate:"required"`
}

// caller returns the signed-in user's id. Routes guarantee one is present.
func caller(r *http.Request) (primitive.ObjectID, error) {
	_, _, uid, ok := authz.UserCtx(r)
	if !ok {
		return primitive.NilObjectID, apperr.Unauthorized("authentication required")
	}
	return uid, nil
}

// target resolves the caller and the {id} path parameter.
func target(r *http.Request) (uid, id primitive.ObjectID, err error) {
	if uid, err = caller(r); err != nil {
		return
	}
	id, err = respond.PathID(r, "id")
	return
}

/*─────────────────────────────────────────────────────────────────────────────*
| Reads                                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

// List handles GET /activities?status=&q=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list activities")
	defer cancel()

	out, err := h.Ctl.List(ctx, lifecycle.ListQuery{
		Status: normalize.QueryParam(r.URL.Query().Get("status")),
		Query:  normalize.QueryParam(r.URL.Query().Get("q")),
	})
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

// Mine handles GET /activities/my.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	uid, err := caller(r)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list own activities")
	defer cancel()

	out, err := h.Ctl.ListByOrganization(ctx, uid)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

// Detail handles GET /activities/{id}.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	uid, id, err := target(r)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "activity detail")
	defer cancel()

	d, err := h.Ctl.Detail(ctx, id, uid)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, d)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Organization writes                                                         |
*─────────────────────────────────────────────────────────────────────────────*/

// Create handles POST /activities.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	uid, err := caller(r)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	var in lifecycle.ActivityInput
	if err := respond.DecodeJSON(r, &in); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create activity")
	defer cancel()

	a, err := h.Ctl.Create(ctx, uid, in)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	h.AuditLog.ActivityCreated(ctx, r, uid, a.ID, a.Title)
	respond.JSON(w, http.StatusCreated, a)
}

// Update handles PUT /activities/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	uid, id, err := target(r)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	var p lifecycle.ActivityPatch
	if err := respond.DecodeJSON(r, &p); err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "update activity")
	defer cancel()

	a, err := h.Ctl.Update(ctx, id, uid, p)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	h.AuditLog.ActivityUpdated(ctx, r, uid, a.ID, a.EnrolledCount)
	respond.JSON(w, http.StatusOK, a)
}

// RecordAttendance handles PATCH /activities/{id}/attendance.
func (h *Handler) RecordAttendance(w http.ResponseWriter, r *http.Request) {
	uid, id, err := target(r)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	var req attendanceRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	req.UserID = normalize.QueryParam(req.UserID)
	if err := inputval.Validate(req).Err(); err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	studentID, _ := primitive.ObjectIDFromHex(req.UserID)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "record attendance")
	defer cancel()

	e, err := h.Ctl.RecordAttendance(ctx, id, uid, studentID, req.Status)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	h.AuditLog.AttendanceRecorded(ctx, r, uid, e.UserID, e.ActivityID, e.AttendanceStatus)
	respond.JSON(w, http.StatusOK, e)
}

// Finish handles POST /activities/{id}/finish.
func (h *Handler) Finish(w http.ResponseWriter, r *http.Request) {
	uid, id, err := target(r)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "finish activity")
	defer cancel()

	res, err := h.Ctl.Finish(ctx, id, uid)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	h.AuditLog.ActivityFinished(ctx, r, uid, id, res.CertificatesIssued)
	respond.JSON(w, http.StatusOK, res)
}

// Cancel handles POST /activities/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	uid, id, err := target(r)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "cancel activity")
	defer cancel()

	a, err := h.Ctl.Cancel(ctx, id, uid)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	h.AuditLog.ActivityCancelled(ctx, r, uid, id)
	respond.JSON(w, http.StatusOK, a)
}

// Delete handles DELETE /activities/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, id, err := target(r)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "delete activity")
	defer cancel()

	a, err := h.Ctl.Delete(ctx, id, uid)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	h.AuditLog.ActivityDeleted(ctx, r, uid, id, a.Title)
	respond.NoContent(w)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Student writes                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

// Join handles POST /activities/{id}/join.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	uid, id, err := target(r)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "enroll")
	defer cancel()

	e, err := h.Ctl.Enroll(ctx, id, uid)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	h.AuditLog.EnrollmentCreated(ctx, r, uid, id, e.ID)
	respond.JSON(w, http.StatusCreated, e)
}
