// internal/app/features/dashboard/handler.go
package dashboard

import (
	"net/http"

	"github.com/maishoras/maishoras/internal/app/certify"
	"github.com/maishoras/maishoras/internal/app/lifecycle"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/authz"
	"github.com/maishoras/maishoras/internal/app/system/respond"
	"github.com/maishoras/maishoras/internal/app/system/timeouts"
	"github.com/maishoras/maishoras/internal/domain/models"
	"go.uber.org/zap"
)

type Handler struct {
	Issuer *certify.Issuer
	Ctl    *lifecycle.Controller
	Log    *zap.Logger
}

func NewHandler(issuer *certify.Issuer, ctl *lifecycle.Controller, logger *zap.Logger) *Handler {
	return &Handler{
		Issuer: issuer,
		Ctl:    ctl,
		Log:    logger,
	}
}

// organizationOverview is the organization dashboard payload.
type organizationOverview struct {
	Activities  int                  `json:"activities"`
	ByStatus    map[string]int       `json:"byStatus"`
	Enrolled    int                  `json:"enrolled"`
	Uncertified int                  `json:"uncertified"`
	Upcoming    []models.ActivityRef `json:"upcoming"`
}

// ServeDashboard handles GET /dashboard and dispatches on the caller's role.
func (h *Handler) ServeDashboard(w http.ResponseWriter, r *http.Request) {
	if _, _, _, ok := authz.UserCtx(r); !ok {
		respond.Error(w, h.Log, apperr.Unauthorized("authentication required"))
		return
	}

	switch {
	case authz.IsStudent(r):
		h.ServeStudent(w, r)
	case authz.IsOrganization(r):
		h.ServeOrganization(w, r)
	default:
		respond.Error(w, h.Log, apperr.Forbidden("there is no dashboard for this role"))
	}
}

// ServeStudent handles GET /dashboard/student: the caller's enrollments,
// certificates and certified hours.
func (h *Handler) ServeStudent(w http.ResponseWriter, r *http.Request) {
	_, uname, uid, ok := authz.UserCtx(r)
	if !ok {
		respond.Error(w, h.Log, apperr.Unauthorized("authentication required"))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "student dashboard")
	defer cancel()

	summary, err := h.Issuer.Summary(ctx, uid)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	h.Log.Debug("student dashboard served", zap.String("user", uname))
	respond.JSON(w, http.StatusOK, summary)
}

// ServeOrganization handles GET /dashboard/organization.
func (h *Handler) ServeOrganization(w http.ResponseWriter, r *http.Request) {
	_, uname, uid, ok := authz.UserCtx(r)
	if !ok {
		respond.Error(w, h.Log, apperr.Unauthorized("authentication required"))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "organization dashboard")
	defer cancel()

	acts, err := h.Ctl.ListByOrganization(ctx, uid)
	if err != nil {
		respond.Error(w, h.Log, err)
		return
	}

	out := organizationOverview{
		Activities: len(acts),
		ByStatus:   map[string]int{},
		Upcoming:   []models.ActivityRef{},
	}
	for _, a := range acts {
		out.ByStatus[a.Status]++
		out.Enrolled += a.EnrolledCount
		switch {
		case a.IsActive():
			out.Upcoming = append(out.Upcoming, models.ActivityRefOf(a))
		case a.Status == models.ActivityFinished && !a.Certified:
			out.Uncertified++
		}
	}

	h.Log.Debug("organization dashboard served", zap.String("user", uname))
	respond.JSON(w, http.StatusOK, out)
}
