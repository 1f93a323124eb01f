// internal/app/features/certificates/routes.go
package certificates

import (
	"github.com/go-chi/chi/v5"
	"github.com/maishoras/maishoras/internal/app/system/auth"
	"github.com/maishoras/maishoras/internal/domain/models"
)

// Routes returns the router for /certificates.
func Routes(h *Handler, mgr *auth.Manager) chi.Router {
	r := chi.NewRouter()

	r.Get("/validate/{code}", h.Verify)

	r.Group(func(pr chi.Router) {
		pr.Use(mgr.RequireSignedIn)
		pr.Get("/my", h.Mine)
		pr.Get("/{id}", h.Detail)
	})

	r.With(mgr.RequireRole(models.RoleOrganization)).Post("/{enrollmentID}", h.Issue)

	return r
}
