// internal/app/features/participations/routes.go
package participations

import (
	"github.com/go-chi/chi/v5"
	"github.com/maishoras/maishoras/internal/app/system/auth"
	"github.com/maishoras/maishoras/internal/domain/models"
)

// Routes returns the router for /participations.
func Routes(h *Handler, mgr *auth.Manager) chi.Router {
	r := chi.NewRouter()

	r.With(mgr.RequireSignedIn).Get("/my", h.Mine)

	r.Group(func(pr chi.Router) {
		pr.Use(mgr.RequireRole(models.RoleOrganization))
		pr.Put("/{id}/validate", h.Validate)
		pr.Get("/activity/{id}", h.ByActivity)
	})

	return r
}
