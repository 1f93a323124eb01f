// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration; ports, TLS, log level and
// request limits live in WAFFLE's CoreConfig.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI            string        // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase       string        // Database name within MongoDB
	MongoMaxPoolSize    uint64        // Max connections in the driver pool
	MongoMinPoolSize    uint64        // Connections kept warm
	MongoConnectTimeout time.Duration // Bound on the initial connect + ping

	// Bearer tokens
	JWTSecret string        // HMAC secret (at least 32 characters)
	JWTIssuer string        // iss claim
	JWTTTL    time.Duration // Token lifetime

	// BcryptCost for new password hashes (0 means bcrypt.DefaultCost)
	BcryptCost int

	// TimeZone decides what "today" is when checking activity dates.
	TimeZone string

	// Reconciler
	ReconcileInterval time.Duration // How often the repair pass runs (0 disables it)
	ReconcileGrace    time.Duration // How old a guard must be before it is repaired

	// CORSAllowedOrigins lists browser origins allowed to call the API.
	// Empty disables CORS handling.
	CORSAllowedOrigins []string

	// AuditLog is the destination of audit events: all, db, log or off.
	AuditLog string

	// Timeout overrides (0 keeps the default)
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
}
