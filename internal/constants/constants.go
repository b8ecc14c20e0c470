package constants

import "time"

// Database Constants
const (
	// PostgreSQL defaults
	DefaultPostgresPort    = 5432
	DefaultPostgresSSLMode = "disable"

	// Connection pool settings
	DefaultPostgresMaxConnections = 25
	DefaultPostgresMaxIdleConns   = 5
	DefaultSQLiteMaxConnections   = 1 // SQLite allows only one writer
	DefaultSQLiteMaxIdleConns     = 1

	// Default table names
	DefaultLedgerTable     = "checkin_ledger"
	DefaultCredentialTable = "checkin_credentials"

	// Table name suffixes when using prefixes
	LedgerSuffix     = "_ledger"
	CredentialSuffix = "_credentials"
)

// Time and Duration Constants
const (
	// Connection pool lifetimes
	DefaultMaxConnLifetime = 5 * time.Minute
	DefaultMaxIdleTime     = 1 * time.Minute
	DefaultSQLiteLifetime  = 10 * time.Minute
	DefaultSQLiteIdleTime  = 5 * time.Minute
)

// Check-in defaults
const (
	DefaultRequestTimeout      = 60 * time.Second
	DefaultMaxAttempts         = 3
	DefaultMaxWorkers          = 1
	DefaultFailureThreshold    = 3
	DefaultRetryInterval       = 2 * time.Hour
	DefaultRetentionDays       = 7
	DefaultSchedule            = "08:00"
	DefaultFlareSolverrTimeout = 60 * time.Second
	DefaultUserAgent           = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Persistence layout
const (
	DateLayout         = "2006-01-02"
	LedgerFileName     = "signin_status.json"
	CredentialFileName = "cookies_backup.json"
	DBFileName         = "checkin.db"
)

// Transport policies
const (
	TransportDirect       = "direct"
	TransportFlareSolverr = "flaresolverr"
)
