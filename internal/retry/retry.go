// Package retry re-runs store operations that hit transient backend faults
// and provides the backoff schedule shared with the check-in coordinator.
package retry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/loykin/checkin/internal/common"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Config holds the retry schedule. MaxRetries counts retries after the
// first try; Delay(n) is the pause after the n-th failure.
type Config struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// RetryableErrors are lower-case fragments matched against error text
	// for drivers that do not expose typed errors.
	RetryableErrors []string
	Logger          *common.Logger
}

// DefaultRetryConfig returns the store retry schedule: 3 retries from 100ms
// doubling up to 5s.
func DefaultRetryConfig() *Config {
	return &Config{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: []string{
			"connection refused",
			"connection reset",
			"timeout",
			"temporary failure",
			"deadlock",
			"database is locked",
			"database table is locked",
			"connection lost",
			"broken pipe",
		},
	}
}

// transient PostgreSQL SQLSTATEs; class 08 (connection exception) is
// matched separately.
var pgTransient = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57P03": true, // cannot_connect_now
}

// Retryable reports whether err is a transient backend fault.
func (rc *Config) Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgTransient[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08")
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, frag := range rc.RetryableErrors {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// Delay returns the pause after the given failed attempt (1-based). A
// BackoffFactor below 1 keeps the delay flat.
func (rc *Config) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return rc.InitialDelay
	}
	factor := math.Max(rc.BackoffFactor, 1)
	d := time.Duration(float64(rc.InitialDelay) * math.Pow(factor, float64(attempt-1)))
	if rc.MaxDelay > 0 && d > rc.MaxDelay {
		return rc.MaxDelay
	}
	return d
}

// Sleep waits d or until ctx is done, reporting whether the full delay passed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (rc *Config) logger() *common.Logger {
	if rc.Logger != nil {
		return rc.Logger.WithComponent("store-retry")
	}
	return common.Discard()
}

// Operation is one store call.
type Operation func() error

// WithRetry runs op until it succeeds, fails permanently or the retries
// are used up. A nil config uses DefaultRetryConfig.
func WithRetry(ctx context.Context, config *Config, op Operation) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	log := config.logger()
	attempts := config.MaxRetries + 1

	var err error
	for attempt := 1; ; attempt++ {
		if err = op(); err == nil {
			if attempt > 1 {
				log.Info("store operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if !config.Retryable(err) {
			log.Debug("store operation failed with non-retryable error", "error", err, "attempt", attempt)
			return err
		}
		if attempt == attempts {
			break
		}
		delay := config.Delay(attempt)
		log.Warn("store operation failed, retrying", "error", err, "attempt", attempt, "max_attempts", attempts, "retry_delay", delay)
		if !Sleep(ctx, delay) {
			return fmt.Errorf("store operation cancelled during retry: %w", ctx.Err())
		}
	}
	log.Error("store operation failed after all retry attempts", "error", err, "attempts", attempts)
	return fmt.Errorf("store operation failed after %d attempts: %w", attempts, err)
}

// WithRetryQuery runs query under WithRetry.
func WithRetryQuery(ctx context.Context, config *Config, query func() (*sql.Rows, error)) (*sql.Rows, error) {
	var rows *sql.Rows
	err := WithRetry(ctx, config, func() (err error) {
		rows, err = query()
		return err
	})
	return rows, err
}

// WithRetryExec runs exec under WithRetry.
func WithRetryExec(ctx context.Context, config *Config, exec func() (sql.Result, error)) (sql.Result, error) {
	var res sql.Result
	err := WithRetry(ctx, config, func() (err error) {
		res, err = exec()
		return err
	})
	return res, err
}
