// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/maishoras/maishoras/internal/app/system/auditlog"
	"github.com/maishoras/maishoras/internal/app/system/auth"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for MaisHoras.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, jwt_secret, etc.
//   - Environment variables: MAISHORAS_MONGO_URI, MAISHORAS_JWT_SECRET, etc.
//   - Command-line flags: --mongo_uri, --jwt_secret, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "maishoras", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "mongo_connect_timeout", Default: "10s", Desc: "Timeout for the initial MongoDB connect and ping"},

	// Authentication
	{Name: "jwt_secret", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "HMAC secret for bearer tokens (must be strong in production)"},
	{Name: "jwt_issuer", Default: "maishoras", Desc: "Issuer claim of bearer tokens"},
	{Name: "jwt_ttl", Default: "24h", Desc: "Bearer token lifetime (e.g., 24h, 90m)"},
	{Name: "bcrypt_cost", Default: 0, Desc: "bcrypt cost for password hashes (0 = library default)"},

	// Calendar
	{Name: "time_zone", Default: "America/Sao_Paulo", Desc: "IANA time zone that decides the current date for activity scheduling"},

	// Reconciler
	{Name: "reconcile_interval", Default: "1m", Desc: "How often stale guards, orphans and missing certificates are repaired (0 disables)"},
	{Name: "reconcile_grace", Default: "2m", Desc: "Age after which a write guard is considered abandoned; keep above the longest timeout"},

	// Browser clients
	{Name: "cors_allowed_origins", Default: "", Desc: "Comma-separated origins allowed to call the API (empty disables CORS)"},

	// Audit logging settings
	{Name: "audit_log", Default: "all", Desc: "Audit event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Timeout overrides
	{Name: "timeout_short", Default: "", Desc: "Timeout for single-document operations (default 5s)"},
	{Name: "timeout_medium", Default: "", Desc: "Timeout for lists and guarded writes (default 10s)"},
	{Name: "timeout_long", Default: "", Desc: "Timeout for multi-collection operations (default 30s)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, MAISHORAS_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "MAISHORAS", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:            appValues.String("mongo_uri"),
		MongoDatabase:       appValues.String("mongo_database"),
		MongoMaxPoolSize:    uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize:    uint64(appValues.Int("mongo_min_pool_size")),
		MongoConnectTimeout: appValues.Duration("mongo_connect_timeout", 10*time.Second),

		JWTSecret:  appValues.String("jwt_secret"),
		JWTIssuer:  appValues.String("jwt_issuer"),
		JWTTTL:     appValues.Duration("jwt_ttl", 24*time.Hour),
		BcryptCost: appValues.Int("bcrypt_cost"),

		TimeZone: strings.TrimSpace(appValues.String("time_zone")),

		ReconcileInterval: appValues.Duration("reconcile_interval", time.Minute),
		ReconcileGrace:    appValues.Duration("reconcile_grace", 2*time.Minute),

		CORSAllowedOrigins: splitList(appValues.String("cors_allowed_origins")),

		AuditLog: strings.ToLower(strings.TrimSpace(appValues.String("audit_log"))),

		TimeoutShort:  appValues.Duration("timeout_short", 0),
		TimeoutMedium: appValues.Duration("timeout_medium", 0),
		TimeoutLong:   appValues.Duration("timeout_long", 0),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// MaisHoras checks the MongoDB URI format, the token settings and the time
// zone before attempting to connect.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	return validateAppConfig(appCfg, coreCfg.Env, logger)
}

func validateAppConfig(cfg AppConfig, env string, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(cfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if strings.TrimSpace(cfg.MongoDatabase) == "" {
		return fmt.Errorf("mongo_database must be set")
	}

	if len(cfg.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("jwt_secret must be at least %d characters", auth.MinSecretLength)
	}
	if env == "prod" && strings.HasPrefix(cfg.JWTSecret, "dev-only") {
		return fmt.Errorf("jwt_secret must be changed in production")
	}
	if cfg.JWTTTL <= 0 {
		return fmt.Errorf("jwt_ttl must be positive")
	}
	if cfg.BcryptCost < 0 || cfg.BcryptCost > 31 {
		return fmt.Errorf("bcrypt_cost must be between 0 and 31")
	}

	if _, err := cfg.location(); err != nil {
		return err
	}

	if cfg.ReconcileInterval < 0 {
		return fmt.Errorf("reconcile_interval must not be negative")
	}
	if cfg.ReconcileInterval > 0 && cfg.ReconcileGrace <= 0 {
		return fmt.Errorf("reconcile_grace must be positive when the reconciler is enabled")
	}

	for _, o := range cfg.CORSAllowedOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("cors_allowed_origins: %q is not an http(s) origin", o)
		}
	}

	switch cfg.AuditLog {
	case auditlog.ModeAll, auditlog.ModeDB, auditlog.ModeLog, auditlog.ModeOff:
	default:
		return fmt.Errorf("audit_log must be one of all, db, log, off; got %q", cfg.AuditLog)
	}
	return nil
}

// location resolves TimeZone.
func (cfg AppConfig) location() (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time_zone %q: %w", cfg.TimeZone, err)
	}
	return loc, nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
