package postgresql

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

// NewStore creates a new PostgreSQL store
func NewStore() *Store {
	return &Store{
		dialect: NewDialect(),
	}
}

// Load loads configuration into the PostgreSQL store
func (p *Store) Load(config map[string]interface{}) error {
	if dsn, ok := config["dsn"].(string); ok && dsn != "" {
		p.DSN = dsn
	}
	return nil
}

// Validate reports a missing DSN
func (p *Store) Validate() error {
	if p.DSN == "" {
		return errors.New("postgresql: dsn or host is required")
	}
	return nil
}

func (p *Store) log() *common.Logger {
	l := p.Logger
	if l == nil {
		l = common.Discard()
	}
	return l.WithStore(p.dialect.GetDriverName())
}

// Connect establishes a connection to PostgreSQL
func (p *Store) Connect() (*sql.DB, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	db, err := p.dialect.Connect(p.DSN)
	if err != nil {
		return nil, err
	}
	p.db = db

	p.log().Info("PostgreSQL database connection established successfully")
	return db, nil
}

// Close closes the database connection
func (p *Store) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Ensure creates the ledger and credential tables
func (p *Store) Ensure(th connector.TableNames) error {
	logger := p.log()
	p.Tables = th
	logger.Debug("ensuring PostgreSQL database schema", "tables", []string{th.Ledger, th.Credentials})

	for i, q := range p.dialect.GetEnsureStatements(th.Ledger, th.Credentials) {
		if _, err := p.db.Exec(q); err != nil {
			logger.Error("failed to create table in schema setup", "error", err, "table_index", i+1)
			return fmt.Errorf("failed to create table %d in PostgreSQL schema setup: %w", i+1, err)
		}
	}
	logger.Info("PostgreSQL database schema ensured successfully")
	return nil
}

func (p *Store) exec(ctx context.Context, q string, args ...interface{}) error {
	_, err := retry.WithRetryExec(ctx, p.Retry, func() (sql.Result, error) {
		return p.db.ExecContext(ctx, q, args...)
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

// LoadRecord returns the ledger record of (date, target)
func (p *Store) LoadRecord(ctx context.Context, date, target string) (connector.Record, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE date = $1 AND target = $2", recordColumns, p.Tables.Ledger)
	r, err := scanRecord(p.db.QueryRowContext(ctx, q, date, target))
	if errors.Is(err, sql.ErrNoRows) {
		return connector.Record{}, connector.ErrNotFound
	}
	if err != nil {
		return connector.Record{}, fmt.Errorf("failed to load record %s/%s: %w", date, target, err)
	}
	return r, nil
}

// SaveRecord inserts or replaces the ledger record of (r.Date, r.Target)
func (p *Store) SaveRecord(ctx context.Context, r connector.Record) error {
	details := ""
	if len(r.Details) > 0 {
		b, err := json.Marshal(r.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details for %s/%s: %w", r.Date, r.Target, err)
		}
		details = string(b)
	}
	q := fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s) %s", p.Tables.Ledger, recordColumns, p.dialect.GetPlaceholders(8),
		p.dialect.GetUpsertClause("date, target", "status", "message", "recorded_at", "failure_count", "messages", "details_json"))
	if err := p.exec(ctx, q, r.Date, r.Target, r.Status, r.Message, r.Time, r.FailureCount, r.Messages, details); err != nil {
		p.log().Error("failed to save record", "error", err, "date", r.Date, "target", r.Target)
		return fmt.Errorf("failed to save record %s/%s: %w", r.Date, r.Target, err)
	}
	return nil
}

// DeleteRecord removes the ledger record of (date, target)
func (p *Store) DeleteRecord(ctx context.Context, date, target string) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE date = $1 AND target = $2", p.Tables.Ledger)
	if err := p.exec(ctx, q, date, target); err != nil {
		return fmt.Errorf("failed to delete record %s/%s: %w", date, target, err)
	}
	return nil
}

// ListRecords returns every record of date ordered by target
func (p *Store) ListRecords(ctx context.Context, date string) ([]connector.Record, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE date = $1 ORDER BY target", recordColumns, p.Tables.Ledger)
	rows, err := retry.WithRetryQuery(ctx, p.Retry, func() (*sql.Rows, error) {
		return p.db.QueryContext(ctx, q, date)
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
func (p *Store) Dates(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT date FROM %s ORDER BY date", p.Tables.Ledger)
	rows, err := retry.WithRetryQuery(ctx, p.Retry, func() (*sql.Rows, error) {
		return p.db.QueryContext(ctx, q)
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
func (p *Store) DeleteDate(ctx context.Context, date string) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE date = $1", p.Tables.Ledger)
	if err := p.exec(ctx, q, date); err != nil {
		return fmt.Errorf("failed to delete date %s: %w", date, err)
	}
	return nil
}

// LoadCredential returns the stored credential of target
func (p *Store) LoadCredential(ctx context.Context, target string) (connector.Credential, error) {
	q := fmt.Sprintf("SELECT target, value, date, updated_at FROM %s WHERE target = $1", p.Tables.Credentials)
	var c connector.Credential
	err := p.db.QueryRowContext(ctx, q, target).Scan(&c.Target, &c.Value, &c.Date, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return connector.Credential{}, connector.ErrNotFound
	}
	if err != nil {
		return connector.Credential{}, fmt.Errorf("failed to load credential of %s: %w", target, err)
	}
	return c, nil
}

// SaveCredential inserts or replaces the credential of c.Target
func (p *Store) SaveCredential(ctx context.Context, c connector.Credential) error {
	q := fmt.Sprintf("INSERT INTO %s(target, value, date, updated_at) VALUES(%s) %s", p.Tables.Credentials, p.dialect.GetPlaceholders(4),
		p.dialect.GetUpsertClause("target", "value", "date", "updated_at"))
	if err := p.exec(ctx, q, c.Target, c.Value, c.Date, c.UpdatedAt); err != nil {
		p.log().Error("failed to save credential", "error", err, "target", c.Target)
		return fmt.Errorf("failed to save credential of %s: %w", c.Target, err)
	}
	return nil
}
