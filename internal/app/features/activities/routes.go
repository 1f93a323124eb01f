// internal/app/features/activities/routes.go
package activities

import (
	"github.com/go-chi/chi/v5"
	"github.com/maishoras/maishoras/internal/app/system/auth"
	"github.com/maishoras/maishoras/internal/domain/models"
)

// Routes returns the router for /activities.
// Anyone can browse; organizations manage the activities they created;
// students enroll.
func Routes(h *Handler, mgr *auth.Manager) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)

	r.Group(func(pr chi.Router) {
		pr.Use(mgr.RequireRole(models.RoleOrganization))

		pr.Post("/", h.Create)
		pr.Get("/my", h.Mine)
		pr.Put("/{id}", h.Update)
		pr.Delete("/{id}", h.Delete)
		pr.Patch("/{id}/attendance", h.RecordAttendance)
		pr.Post("/{id}/finish", h.Finish)
		pr.Post("/{id}/cancel", h.Cancel)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(mgr.RequireRole(models.RoleStudent))
		pr.Post("/{id}/join", h.Join)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(mgr.RequireSignedIn)
		pr.Get("/{id}", h.Detail)
	})

	return r
}
