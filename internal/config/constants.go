package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Payment reconciliation loop interval
const ReconcileJobInterval = 10 * time.Minute

// Default rate limiting
const DefaultRateLimitPerMin = 120

// Messaging limits
const (
	MessageBodyMaxLen = 2000
	MessagePageLimit  = 50
)

// Upload listing page size
const UploadPageLimit = 100

// Payment reconciliation only looks at sessions at least this old, so it
// never races a checkout that is still in flight.
const ReconcileMinSessionAge = time.Hour
