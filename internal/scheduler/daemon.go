package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/checkin/internal/common"
)

// ParseSchedule parses a local "HH:MM" time of day.
func ParseSchedule(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid schedule %q, want HH:MM: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NextRun returns the first hour:minute strictly after now, in now's location.
func NextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Daemon runs one cycle per day at a fixed local time.
type Daemon struct {
	Scheduler *Scheduler
	// At is the daily start time, "HH:MM".
	At     string
	Logger *common.Logger
	// OnReport receives every finished cycle.
	OnReport func(Report)
	// Now and After are the clock; tests replace them.
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// Run blocks until ctx is cancelled. A cycle in progress always completes;
// cancellation is only observed between cycles.
func (d *Daemon) Run(ctx context.Context) error {
	hour, minute, err := ParseSchedule(d.At)
	if err != nil {
		return err
	}
	now, after := d.Now, d.After
	if now == nil {
		now = time.Now
	}
	if after == nil {
		after = time.After
	}
	log := d.Logger
	if log == nil {
		log = common.Discard()
	}
	log = log.WithComponent("daemon")

	for {
		next := NextRun(now(), hour, minute)
		log.Info("next check-in cycle scheduled", "at", next.Format(time.DateTime))
		select {
		case <-ctx.Done():
			log.Info("daemon stopped")
			return nil
		case <-after(next.Sub(now())):
		}

		report, err := d.Scheduler.Run(context.WithoutCancel(ctx), Options{})
		if err != nil {
			log.Error("check-in cycle failed", "error", err)
			continue
		}
		if d.OnReport != nil {
			d.OnReport(report)
		}
		if ctx.Err() != nil {
			log.Info("daemon stopped after cycle")
			return nil
		}
	}
}
