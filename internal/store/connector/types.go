package connector

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record or credential does not exist.
var ErrNotFound = errors.New("store: not found")

// Ledger record statuses. An empty status marks a record cleared with its
// failure count kept.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Record is one (date, target) entry of the daily ledger.
type Record struct {
	Date         string            `json:"-"`
	Target       string            `json:"-"`
	Status       string            `json:"status"`
	Message      string            `json:"message,omitempty"`
	Time         string            `json:"time"`
	FailureCount int               `json:"failure_count"`
	Messages     string            `json:"messages,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// Credential is the last known-good credential of a target.
type Credential struct {
	Target    string `json:"-"`
	Value     string `json:"cookie"`
	Date      string `json:"date"`
	UpdatedAt string `json:"updated_at"`
}

// TableNames represents database table names
type TableNames struct {
	Ledger      string
	Credentials string
}

// Connector is a persistence backend for the ledger and credential records.
type Connector interface {
	LoadRecord(ctx context.Context, date, target string) (Record, error)
	SaveRecord(ctx context.Context, r Record) error
	DeleteRecord(ctx context.Context, date, target string) error
	// ListRecords returns the records of date ordered by target.
	ListRecords(ctx context.Context, date string) ([]Record, error)
	// Dates returns every date holding at least one record, ascending.
	Dates(ctx context.Context) ([]string, error)
	DeleteDate(ctx context.Context, date string) error

	LoadCredential(ctx context.Context, target string) (Credential, error)
	SaveCredential(ctx context.Context, c Credential) error

	Close() error
}
