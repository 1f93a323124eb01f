// internal/app/features/users/routes.go
package users

import (
	"github.com/go-chi/chi/v5"
	"github.com/maishoras/maishoras/internal/app/system/auth"
)

func Routes(h *Handler, mgr *auth.Manager) chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	r.Group(func(pr chi.Router) {
		pr.Use(mgr.RequireSignedIn)
		pr.Get("/me", h.Me)
		pr.Put("/me", h.UpdateMe)
	})
	return r
}
