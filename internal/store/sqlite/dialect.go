package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/loykin/checkin/internal/constants"
	_ "modernc.org/sqlite"
)

// Dialect implements SQL dialect for SQLite
type Dialect struct{}

// NewDialect creates a new SQLite dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

// GetPlaceholder returns SQLite-style placeholders (?)
func (s *Dialect) GetPlaceholder() string {
	return "?"
}

// GetPlaceholders returns "?,?,...,?" with n entries
func (s *Dialect) GetPlaceholders(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = s.GetPlaceholder()
	}
	return strings.Join(out, ",")
}

// whereEq renders "a = ? AND b = ?" for columns
func (s *Dialect) whereEq(columns ...string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c + " = " + s.GetPlaceholder()
	}
	return strings.Join(parts, " AND ")
}

// GetUpsertClause returns the conflict clause that replaces a row in place
func (s *Dialect) GetUpsertClause(keys string, columns ...string) string {
	return upsertClause(keys, columns)
}

// Connect establishes a connection to SQLite with connection pooling
func (s *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	// SQLite allows only one writer
	db.SetMaxOpenConns(constants.DefaultSQLiteMaxConnections)
	db.SetMaxIdleConns(constants.DefaultSQLiteMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultSQLiteLifetime)
	db.SetConnMaxIdleTime(constants.DefaultSQLiteIdleTime)

	return db, nil
}

// GetEnsureStatements returns SQLite-specific table creation statements
func (s *Dialect) GetEnsureStatements(ledger, credentials string) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (date TEXT NOT NULL, target TEXT NOT NULL, status TEXT NOT NULL DEFAULT '', message TEXT NOT NULL DEFAULT '', recorded_at TEXT NOT NULL DEFAULT '', failure_count INTEGER NOT NULL DEFAULT 0, messages TEXT NOT NULL DEFAULT '', details_json TEXT NOT NULL DEFAULT '', PRIMARY KEY(date, target))", ledger),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (target TEXT PRIMARY KEY, value TEXT NOT NULL, date TEXT NOT NULL DEFAULT '', updated_at TEXT NOT NULL DEFAULT '')", credentials),
	}
}

// GetDriverName returns the driver name for logging
func (s *Dialect) GetDriverName() string {
	return "sqlite"
}

func upsertClause(keys string, columns []string) string {
	out := fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET ", keys)
	for i, c := range columns {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s = excluded.%s", c, c)
	}
	return out
}
