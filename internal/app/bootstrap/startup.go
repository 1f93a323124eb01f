// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"sync"

	"github.com/dalemusser/waffle/config"
	"github.com/maishoras/maishoras/internal/app/certify"
	"github.com/maishoras/maishoras/internal/app/lifecycle"
	"github.com/maishoras/maishoras/internal/app/store/audit"
	"github.com/maishoras/maishoras/internal/app/system/auditlog"
	"github.com/maishoras/maishoras/internal/app/system/timeouts"
	"github.com/maishoras/maishoras/internal/app/system/workers"
	"go.uber.org/zap"
)

// Background holds the long-lived services built at startup.
type Background struct {
	mu         sync.Mutex
	issuer     *certify.Issuer
	controller *lifecycle.Controller
	audit      *auditlog.Logger
	reconciler *workers.Reconciler
}

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built: it applies
// timeout overrides, builds the domain services and starts the reconciler.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
	})
	cur := timeouts.Current()
	logger.Info("timeouts configured",
		zap.Duration("short", cur.Short),
		zap.Duration("medium", cur.Medium),
		zap.Duration("long", cur.Long))
	if appCfg.ReconcileInterval > 0 && appCfg.ReconcileGrace <= cur.Long {
		logger.Warn("reconcile_grace is not above the long timeout; live guards may be repaired",
			zap.Duration("grace", appCfg.ReconcileGrace),
			zap.Duration("long_timeout", cur.Long))
	}

	loc, err := appCfg.location()
	if err != nil {
		return err
	}

	bg := deps.Background
	bg.mu.Lock()
	defer bg.mu.Unlock()

	bg.issuer = certify.New(deps.MongoDatabase, logger)
	bg.controller = lifecycle.New(deps.MongoDatabase, deps.Txn, bg.issuer, loc, logger)
	bg.audit = auditlog.New(audit.New(deps.MongoDatabase), logger, auditlog.ConfigFromMode(appCfg.AuditLog))

	if appCfg.ReconcileInterval > 0 {
		bg.reconciler = workers.NewReconciler(deps.MongoDatabase, bg.issuer, logger,
			appCfg.ReconcileInterval, appCfg.ReconcileGrace)
		bg.reconciler.Start()
	} else {
		logger.Warn("reconciler disabled; abandoned guards and missing certificates will not be repaired")
	}
	return nil
}
