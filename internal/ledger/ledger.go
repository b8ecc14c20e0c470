// Package ledger keeps one check-in outcome per (date, target) and decides
// whether a target is in failure backoff.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/loykin/checkin/internal/common"
	"github.com/loykin/checkin/internal/constants"
	"github.com/loykin/checkin/internal/store"
)

// Policy is the failure backoff rule.
type Policy struct {
	// Threshold is the failure count from which a target may be skipped.
	// Zero disables backoff.
	Threshold int
	// Interval is how long after the last failure a target stays skipped.
	Interval time.Duration
}

// DefaultPolicy returns threshold 3 and a 2h interval.
func DefaultPolicy() Policy {
	return Policy{Threshold: constants.DefaultFailureThreshold, Interval: constants.DefaultRetryInterval}
}

// Outcome is the payload of a success record.
type Outcome struct {
	Message  string
	Messages string
	Details  map[string]string
}

// Summary groups the records of one date.
type Summary struct {
	Date      string
	Succeeded []store.Record
	Failed    []store.Record
	// Cleared holds records reset by a forced re-run that kept their count.
	Cleared []store.Record
}

// Total is the number of records of the date.
func (s Summary) Total() int { return len(s.Succeeded) + len(s.Failed) + len(s.Cleared) }

// Ledger serialises every read-modify-write of the backend.
type Ledger struct {
	mu      sync.Mutex
	backend store.Connector
	logger  *common.Logger
	// Now is the clock; tests replace it.
	Now func() time.Time
}

// New returns a Ledger over backend.
func New(backend store.Connector, logger *common.Logger) *Ledger {
	if logger == nil {
		logger = common.Discard()
	}
	return &Ledger{backend: backend, logger: logger.WithComponent("ledger"), Now: time.Now}
}

// Today returns the current date key.
func (l *Ledger) Today() string { return l.Now().Format(constants.DateLayout) }

func (l *Ledger) load(ctx context.Context, date, target string) (store.Record, bool, error) {
	r, err := l.backend.LoadRecord(ctx, date, target)
	if errors.Is(err, store.ErrNotFound) {
		return store.Record{}, false, nil
	}
	if err != nil {
		return store.Record{}, false, err
	}
	return r, true, nil
}

// Get returns the record of (date, target), if any.
func (l *Ledger) Get(ctx context.Context, date, target string) (store.Record, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx, date, target)
}

// Succeeded reports whether target already has a success record for date.
func (l *Ledger) Succeeded(ctx context.Context, date, target string) (bool, error) {
	r, ok, err := l.Get(ctx, date, target)
	return ok && r.Status == store.StatusSuccess, err
}

// RecordSuccess writes a success record and resets the failure count.
func (l *Ledger) RecordSuccess(ctx context.Context, date, target string, o Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.backend.SaveRecord(ctx, store.Record{
		Date:     date,
		Target:   target,
		Status:   store.StatusSuccess,
		Message:  o.Message,
		Time:     l.Now().Format(time.RFC3339),
		Messages: o.Messages,
		Details:  o.Details,
	})
	if err != nil {
		return fmt.Errorf("record success of %s: %w", target, err)
	}
	l.logger.Debug("recorded success", "date", date, "target", target)
	return nil
}

// RecordFailure writes a failure record. The count continues from the
// existing record unless that record was a success.
func (l *Ledger) RecordFailure(ctx context.Context, date, target, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, ok, err := l.load(ctx, date, target)
	if err != nil {
		return fmt.Errorf("record failure of %s: %w", target, err)
	}
	count := 0
	if ok && prev.Status != store.StatusSuccess {
		count = prev.FailureCount
	}
	err = l.backend.SaveRecord(ctx, store.Record{
		Date:         date,
		Target:       target,
		Status:       store.StatusFailed,
		Message:      reason,
		Time:         l.Now().Format(time.RFC3339),
		FailureCount: count + 1,
	})
	if err != nil {
		return fmt.Errorf("record failure of %s: %w", target, err)
	}
	l.logger.Debug("recorded failure", "date", date, "target", target, "failure_count", count+1)
	return nil
}

// ShouldSkip reports whether target is in backoff for date under p, with a
// human readable reason.
func (l *Ledger) ShouldSkip(ctx context.Context, date, target string, p Policy) (bool, string, error) {
	if p.Threshold <= 0 {
		return false, "", nil
	}
	r, ok, err := l.Get(ctx, date, target)
	if err != nil || !ok {
		return false, "", err
	}
	if r.Status == store.StatusSuccess || r.FailureCount < p.Threshold {
		return false, "", nil
	}
	last, err := time.Parse(time.RFC3339, r.Time)
	if err != nil {
		return false, "", nil
	}
	if elapsed := l.Now().Sub(last); elapsed < p.Interval {
		return true, fmt.Sprintf("%d consecutive failures, retry after %s", r.FailureCount, last.Add(p.Interval).Format(time.DateTime)), nil
	}
	return false, "", nil
}

// Clear removes the record of (date, target). With keepCount a record
// holding only the failure count and its time is left behind.
func (l *Ledger) Clear(ctx context.Context, date, target string, keepCount bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok, err := l.load(ctx, date, target)
	if err != nil || !ok {
		return err
	}
	if keepCount && r.FailureCount > 0 {
		return l.backend.SaveRecord(ctx, store.Record{Date: date, Target: target, Time: r.Time, FailureCount: r.FailureCount})
	}
	return l.backend.DeleteRecord(ctx, date, target)
}

// ClearDate removes every record of date.
func (l *Ledger) ClearDate(ctx context.Context, date string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backend.DeleteDate(ctx, date)
}

// Prune removes dates more than retentionDays before today, and any date
// key that does not parse. It returns the removed keys.
func (l *Ledger) Prune(ctx context.Context, retentionDays int) ([]string, error) {
	if retentionDays <= 0 {
		retentionDays = constants.DefaultRetentionDays
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	dates, err := l.backend.Dates(ctx)
	if err != nil {
		return nil, err
	}
	now := l.Now()
	today, _ := time.ParseInLocation(constants.DateLayout, now.Format(constants.DateLayout), now.Location())

	var removed []string
	for _, d := range dates {
		day, err := time.ParseInLocation(constants.DateLayout, d, now.Location())
		if err == nil && int(math.Round(today.Sub(day).Hours()/24)) <= retentionDays {
			continue
		}
		if err := l.backend.DeleteDate(ctx, d); err != nil {
			return removed, err
		}
		removed = append(removed, d)
	}
	if len(removed) > 0 {
		l.logger.Info("pruned ledger", "dates", removed)
	}
	return removed, nil
}

// Summary returns the records of date grouped by status.
func (l *Ledger) Summary(ctx context.Context, date string) (Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	recs, err := l.backend.ListRecords(ctx, date)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Date: date}
	for _, r := range recs {
		switch r.Status {
		case store.StatusSuccess:
			s.Succeeded = append(s.Succeeded, r)
		case store.StatusFailed:
			s.Failed = append(s.Failed, r)
		default:
			s.Cleared = append(s.Cleared, r)
		}
	}
	return s, nil
}
