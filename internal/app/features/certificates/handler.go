// internal/app/features/certificates/handler.go
package certificates

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maishoras/maishoras/internal/app/certify"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/auditlog"
	"github.com/maishoras/maishoras/internal/app/system/authz"
	"github.com/maishoras/maishoras/internal/app/system/respond"
	"github.com/maishoras/maishoras/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Handler serves certificate issuance, listing and public verification.
type Handler struct {
	Issuer   *certify.Issuer
	AuditLog *auditlog.Logger
	Log      *zap.Logger
}

// NewHandler creates a new certificates Handler.
func NewHandler(issuer *certify.Issuer, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{Issuer: issuer, AuditLog: audit, Log: logger}
}

// Issue handles POST /certificates/{enrollmentID}.
//
// 201 when a certificate was created, 200 with the existing one otherwise.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	_, _, uid, ok := authz.UserCtx(r)
	if !ok {
		respond.Error(w, h.Log, apperr.Unauthorized("authentication required"))
		return
	}
	enrollmentID, err := respond.PathID(r, "enrollmentID")
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "issue certificate")
	defer cancel()

	c, created, err := h.Issuer.IssueForEnrollment(ctx, enrollmentID, uid)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	if !created {
		respond.JSON(w, http.StatusOK, c)
		return
	}
	h.AuditLog.CertificateIssued(ctx, r, uid, c.UserID, c.ActivityID, c.ID)
	respond.JSON(w, http.StatusCreated, c)
}

// Mine handles GET /certificates/my.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	_, _, uid, ok := authz.UserCtx(r)
	if !ok {
		respond.Error(w, h.Log, apperr.Unauthorized("authentication required"))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list own certificates")
	defer cancel()

	out, err := h.Issuer.ListForUser(ctx, uid)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

// Detail handles GET /certificates/{id}.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "certificate detail")
	defer cancel()

	v, err := h.Issuer.Get(ctx, id, uid)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, v)
}

// Verify handles GET /certificates/validate/{code}. It is public so that
// anyone holding a certificate code can check it.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "verify certificate")
	defer cancel()

	v, err := h.Issuer.Validate(ctx, chi.URLParam(r, "code"))
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}
	respond.JSON(w, http.StatusOK, v)
}
