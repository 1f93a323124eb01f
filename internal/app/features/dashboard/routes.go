// internal/app/features/dashboard/routes.go
package dashboard

import (
	"github.com/go-chi/chi/v5"
	"github.com/maishoras/maishoras/internal/app/system/auth"
	"github.com/maishoras/maishoras/internal/domain/models"
)

// Routes wires the dashboard feature under whatever mount point
// the top-level router chooses (e.g., "/dashboard").
func Routes(h *Handler, mgr *auth.Manager) chi.Router {
	r := chi.NewRouter()

	// All dashboards require the user to be signed in.
	r.Group(func(pr chi.Router) {
		pr.Use(mgr.RequireSignedIn)
		pr.Get("/", h.ServeDashboard)
		pr.Get("/student", h.ServeStudent)
		pr.With(mgr.RequireRole(models.RoleOrganization)).Get("/organization", h.ServeOrganization)
	})

	return r
}
