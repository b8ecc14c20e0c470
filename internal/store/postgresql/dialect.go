package postgresql

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/loykin/checkin/internal/constants"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Dialect implements SQL dialect for PostgreSQL
type Dialect struct{}

// NewDialect creates a new PostgreSQL dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// GetPlaceholder returns PostgreSQL-style placeholders ($1, $2, etc.)
func (p *Dialect) GetPlaceholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// GetPlaceholders returns "$1,$2,...,$n"
func (p *Dialect) GetPlaceholders(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = p.GetPlaceholder(i + 1)
	}
	return strings.Join(out, ",")
}

// GetUpsertClause returns the conflict clause that replaces a row in place
func (p *Dialect) GetUpsertClause(keys string, columns ...string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", c, c)
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", keys, strings.Join(sets, ", "))
}

// Connect establishes a connection to PostgreSQL with connection pooling
func (p *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	db.SetMaxOpenConns(constants.DefaultPostgresMaxConnections)
	db.SetMaxIdleConns(constants.DefaultPostgresMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultMaxConnLifetime)
	db.SetConnMaxIdleTime(constants.DefaultMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}
	return db, nil
}

// GetEnsureStatements returns PostgreSQL-specific table creation statements
func (p *Dialect) GetEnsureStatements(ledger, credentials string) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (date TEXT NOT NULL, target TEXT NOT NULL, status TEXT NOT NULL DEFAULT '', message TEXT NOT NULL DEFAULT '', recorded_at TEXT NOT NULL DEFAULT '', failure_count INTEGER NOT NULL DEFAULT 0, messages TEXT NOT NULL DEFAULT '', details_json TEXT NOT NULL DEFAULT '', PRIMARY KEY(date, target))", ledger),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (target TEXT PRIMARY KEY, value TEXT NOT NULL, date TEXT NOT NULL DEFAULT '', updated_at TEXT NOT NULL DEFAULT '')", credentials),
	}
}

// GetDriverName returns the driver name for logging
func (p *Dialect) GetDriverName() string {
	return "postgresql"
}
