package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loykin/checkin/internal/common"
	"github.com/loykin/checkin/internal/retry"
	"github.com/loykin/checkin/internal/store/connector"
)

type Store struct {
	db      *sql.DB
	dialect *Dialect
	DSN     string
	Tables  connector.TableNames
	Retry   *retry.Config
	Logger  *common.Logger
}

// NewStore creates a new SQLite store
func NewStore() *Store {
	return &Store{
		dialect: NewDialect(),
	}
}

// Load loads configuration into the SQLite store
func (s *Store) Load(config map[string]interface{}) error {
	if dsn, ok := config["dsn"].(string); ok && dsn != "" {
		s.DSN = dsn
		return nil
	}
	if path, ok := config["path"].(string); ok && path != "" {
		s.DSN = fmt.Sprintf("file:%s?_busy_timeout=%d&%s", path, busyTimeoutMS, foreignKeysParam)
	}
	return nil
}

func (s *Store) log() *common.Logger {
	l := s.Logger
	if l == nil {
		l = common.Discard()
	}
	return l.WithStore(s.dialect.GetDriverName())
}

// Connect establishes a connection to SQLite
func (s *Store) Connect() (*sql.DB, error) {
	if s.DSN == "" {
		s.DSN = ":memory:"
	}

	db, err := s.dialect.Connect(s.DSN)
	if err != nil {
		return nil, err
	}
	s.db = db

	s.log().Info("SQLite database connection established successfully")
	return db, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure creates the ledger and credential tables
func (s *Store) Ensure(th connector.TableNames) error {
	logger := s.log()
	s.Tables = th
	logger.Debug("ensuring SQLite database schema", "tables", []string{th.Ledger, th.Credentials})

	for i, q := range s.dialect.GetEnsureStatements(th.Ledger, th.Credentials) {
		if _, err := s.db.Exec(q); err != nil {
			logger.Error("failed to create table in schema setup", "error", err, "table_index", i+1)
			return fmt.Errorf("failed to create table %d in schema setup: %w", i+1, err)
		}
	}
	logger.Info("SQLite database schema ensured successfully")
	return nil
}

func (s *Store) exec(ctx context.Context, q string, args ...interface{}) error {
	_, err := retry.WithRetryExec(ctx, s.Retry, func() (sql.Result, error) {
		return s.db.ExecContext(ctx, q, args...)
	})
	return err
}

const recordColumns = "date, target, status, message, recorded_at, failure_count, messages, details_json"

func scanRecord(sc interface{ Scan(...interface{}) error }) (connector.Record, error) {
	var r connector.Record
	var details string
	if err := sc.Scan(&r.Date, &r.Target, &r.Status, &r.Message, &r.Time, &r.FailureCount, &r.Messages, &details); err != nil {
		return connector.Record{}, err
	}
	if details != "" {
		_ = json.Unmarshal([]byte(details), &r.Details)
	}
	return r, nil
}

func encodeDetails(d map[string]string) (string, error) {
	if len(d) == 0 {
		return "", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LoadRecord returns the ledger record of (date, target)
func (s *Store) LoadRecord(ctx context.Context, date, target string) (connector.Record, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s", recordColumns, s.Tables.Ledger, s.dialect.whereEq("date", "target"))
	r, err := scanRecord(s.db.QueryRowContext(ctx, q, date, target))
	if errors.Is(err, sql.ErrNoRows) {
		return connector.Record{}, connector.ErrNotFound
	}
	if err != nil {
		return connector.Record{}, fmt.Errorf("failed to load record %s/%s: %w", date, target, err)
	}
	return r, nil
}

// SaveRecord inserts or replaces the ledger record of (r.Date, r.Target)
func (s *Store) SaveRecord(ctx context.Context, r connector.Record) error {
	details, err := encodeDetails(r.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details for %s/%s: %w", r.Date, r.Target, err)
	}
	q := fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s) %s", s.Tables.Ledger, recordColumns, s.dialect.GetPlaceholders(8),
		s.dialect.GetUpsertClause("date, target", "status", "message", "recorded_at", "failure_count", "messages", "details_json"))
	if err := s.exec(ctx, q, r.Date, r.Target, r.Status, r.Message, r.Time, r.FailureCount, r.Messages, details); err != nil {
		s.log().Error("failed to save record", "error", err, "date", r.Date, "target", r.Target)
		return fmt.Errorf("failed to save record %s/%s: %w", r.Date, r.Target, err)
	}
	return nil
}

// DeleteRecord removes the ledger record of (date, target)
func (s *Store) DeleteRecord(ctx context.Context, date, target string) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s", s.Tables.Ledger, s.dialect.whereEq("date", "target"))
	if err := s.exec(ctx, q, date, target); err != nil {
		return fmt.Errorf("failed to delete record %s/%s: %w", date, target, err)
	}
	return nil
}

// ListRecords returns every record of date ordered by target
func (s *Store) ListRecords(ctx context.Context, date string) ([]connector.Record, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY target", recordColumns, s.Tables.Ledger, s.dialect.whereEq("date"))
	rows, err := retry.WithRetryQuery(ctx, s.Retry, func() (*sql.Rows, error) {
		return s.db.QueryContext(ctx, q, date)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records of %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	var out []connector.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return out, nil
}

// Dates returns the distinct ledger dates ascending
func (s *Store) Dates(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT date FROM %s ORDER BY date", s.Tables.Ledger)
	rows, err := retry.WithRetryQuery(ctx, s.Retry, func() (*sql.Rows, error) {
		return s.db.QueryContext(ctx, q)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dates: %w", err)
	}
	return out, nil
}

// DeleteDate removes every record of date
func (s *Store) DeleteDate(ctx context.Context, date string) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s", s.Tables.Ledger, s.dialect.whereEq("date"))
	if err := s.exec(ctx, q, date); err != nil {
		return fmt.Errorf("failed to delete date %s: %w", date, err)
	}
	return nil
}

// LoadCredential returns the stored credential of target
func (s *Store) LoadCredential(ctx context.Context, target string) (connector.Credential, error) {
	q := fmt.Sprintf("SELECT target, value, date, updated_at FROM %s WHERE %s", s.Tables.Credentials, s.dialect.whereEq("target"))
	var c connector.Credential
	err := s.db.QueryRowContext(ctx, q, target).Scan(&c.Target, &c.Value, &c.Date, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return connector.Credential{}, connector.ErrNotFound
	}
	if err != nil {
		return connector.Credential{}, fmt.Errorf("failed to load credential of %s: %w", target, err)
	}
	return c, nil
}

// SaveCredential inserts or replaces the credential of c.Target
func (s *Store) SaveCredential(ctx context.Context, c connector.Credential) error {
	q := fmt.Sprintf("INSERT INTO %s(target, value, date, updated_at) VALUES(%s) %s", s.Tables.Credentials, s.dialect.GetPlaceholders(4),
		s.dialect.GetUpsertClause("target", "value", "date", "updated_at"))
	if err := s.exec(ctx, q, c.Target, c.Value, c.Date, c.UpdatedAt); err != nil {
		s.log().Error("failed to save credential", "error", err, "target", c.Target)
		return fmt.Errorf("failed to save credential of %s: %w", c.Target, err)
	}
	return nil
}
