// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	activitiesfeature "github.com/maishoras/maishoras/internal/app/features/activities"
	certificatesfeature "github.com/maishoras/maishoras/internal/app/features/certificates"
	dashboardfeature "github.com/maishoras/maishoras/internal/app/features/dashboard"
	healthfeature "github.com/maishoras/maishoras/internal/app/features/health"
	participationsfeature "github.com/maishoras/maishoras/internal/app/features/participations"
	usersfeature "github.com/maishoras/maishoras/internal/app/features/users"
	userstore "github.com/maishoras/maishoras/internal/app/store/users"
	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/auth"
	"github.com/maishoras/maishoras/internal/app/system/metrics"
	"github.com/maishoras/maishoras/internal/app/system/requestid"
	"github.com/maishoras/maishoras/internal/app/system/respond"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed, so the services in deps.Background are
// ready.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if deps.Background == nil {
		return nil, errors.New("bootstrap: Startup has not run")
	}

	tokens, err := auth.NewTokens(appCfg.JWTSecret, appCfg.JWTIssuer, appCfg.JWTTTL)
	if err != nil {
		logger.Error("token signer init failed", zap.Error(err))
		return nil, err
	}

	// The fetcher reloads the user on each request so role changes and
	// deleted accounts take effect before the token expires.
	mgr := auth.NewManager(tokens, userstore.NewFetcher(deps.MongoDatabase), logger)

	return newRouter(deps, mgr, appCfg, logger), nil
}

func newRouter(deps DBDeps, mgr *auth.Manager, appCfg AppConfig, logger *zap.Logger) chi.Router {
	bg := deps.Background
	bg.mu.Lock()
	defer bg.mu.Unlock()

	r := chi.NewRouter()

	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)
	if len(appCfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: appCfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", requestid.Header},
			ExposedHeaders: []string{requestid.Header},
			MaxAge:         300,
		}))
	}
	r.Use(metrics.Middleware)
	// Global auth middleware: loads the bearer-token user into context.
	r.Use(mgr.LoadUser)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, logger, apperr.NotFound("route"))
	})

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Txn, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Handle("/metrics", metrics.Handler())

	// Accounts
	usersHandler := usersfeature.NewHandler(deps.MongoDatabase, mgr.Tokens(), bg.audit, appCfg.BcryptCost, logger)
	r.Mount("/users", usersfeature.Routes(usersHandler, mgr))

	// Activity lifecycle and enrollment
	activitiesHandler := activitiesfeature.NewHandler(bg.controller, bg.audit, logger)
	r.Mount("/activities", activitiesfeature.Routes(activitiesHandler, mgr))

	participationsHandler := participationsfeature.NewHandler(bg.controller, bg.audit, logger)
	r.Mount("/participations", participationsfeature.Routes(participationsHandler, mgr))

	// Certificates
	certificatesHandler := certificatesfeature.NewHandler(bg.issuer, bg.audit, logger)
	r.Mount("/certificates", certificatesfeature.Routes(certificatesHandler, mgr))

	// Role-based dashboards
	dashboardHandler := dashboardfeature.NewHandler(bg.issuer, bg.controller, logger)
	r.Mount("/dashboard", dashboardfeature.Routes(dashboardHandler, mgr))

	return r
}
