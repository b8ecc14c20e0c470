// Package scheduler runs one check-in cycle over every configured target
// and repeats it daily in daemon mode.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/loykin/checkin/internal/adapter"
	"github.com/loykin/checkin/internal/checkin"
	"github.com/loykin/checkin/internal/common"
	"github.com/loykin/checkin/internal/constants"
	"github.com/loykin/checkin/internal/ledger"
	"github.com/loykin/checkin/internal/metrics"
	"github.com/loykin/checkin/internal/task"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownSite is returned when Options.Site names no configured target.
var ErrUnknownSite = errors.New("scheduler: unknown site")

// Skip reasons.
const (
	SkipSucceeded = "succeeded"
	SkipBackoff   = "backoff"
	SkipInvalid   = "invalid"
)

// Options select and force targets for one cycle.
type Options struct {
	// Site restricts the cycle to one target.
	Site string
	// Force re-runs targets that already succeeded today.
	Force bool
	// IgnoreBackoff runs targets the skip policy would hold back.
	IgnoreBackoff bool
}

// Entry is one target's line in a Report.
type Entry struct {
	Target   string            `json:"target"`
	Message  string            `json:"message,omitempty"`
	Category string            `json:"category,omitempty"`
	Attempts int               `json:"attempts,omitempty"`
	Messages string            `json:"messages,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
}

// Report aggregates one cycle.
type Report struct {
	Date      string        `json:"date"`
	Total     int           `json:"total"`
	Succeeded []Entry       `json:"succeeded"`
	Failed    []Entry       `json:"failed"`
	Skipped   []Entry       `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// ExitCode is 1 when any attempted target failed, 0 otherwise.
func (r Report) ExitCode() int {
	if len(r.Failed) > 0 {
		return 1
	}
	return 0
}

// Scheduler owns the targets and runs cycles over them. Cycles never overlap.
type Scheduler struct {
	Registry    *adapter.Registry
	Ledger      *ledger.Ledger
	Coordinator *checkin.Coordinator
	// Sites maps target names to their raw configuration.
	Sites         map[string]any
	BuildOptions  adapter.Options
	MaxWorkers    int
	Policy        ledger.Policy
	RetentionDays int
	Metrics       *metrics.Metrics
	Logger        *common.Logger

	mu sync.Mutex
}

type job struct {
	task    *task.Task
	adapter adapter.Adapter
}

func (s *Scheduler) log() *common.Logger {
	if s.Logger == nil {
		return common.Discard().WithComponent("scheduler")
	}
	return s.Logger.WithComponent("scheduler")
}

func (s *Scheduler) workers() int {
	if s.MaxWorkers <= 0 {
		return constants.DefaultMaxWorkers
	}
	return s.MaxWorkers
}

// Names returns the configured target names sorted.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.Sites))
	for name := range s.Sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one cycle. Per-target failures end up in the Report and the
// ledger; the returned error is reserved for unusable options or a context
// that was already done before the cycle started.
func (s *Scheduler) Run(ctx context.Context, opts Options) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	log := s.log()
	date := s.Ledger.Today()
	report := Report{Date: date}

	if opts.Site != "" {
		if _, ok := s.Sites[opts.Site]; !ok {
			return report, fmt.Errorf("%w: %s", ErrUnknownSite, opts.Site)
		}
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	// a started cycle runs to completion; cancellation only stops the next one
	ctx = context.WithoutCancel(ctx)

	if _, err := s.Ledger.Prune(ctx, s.RetentionDays); err != nil {
		log.Warn("failed to prune ledger", "error", err)
	}

	jobs := s.plan(ctx, date, opts, &report)
	log.Info("starting check-in cycle", "date", date, "targets", len(jobs), "skipped", len(report.Skipped), "workers", s.workers())

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.workers())
	for _, j := range jobs {
		g.Go(func() error {
			e, ok := s.runOne(ctx, date, j)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				report.Succeeded = append(report.Succeeded, e)
			} else {
				report.Failed = append(report.Failed, e)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, list := range [][]Entry{report.Succeeded, report.Failed, report.Skipped} {
		sort.Slice(list, func(a, b int) bool { return list[a].Target < list[b].Target })
	}
	report.Total = len(report.Succeeded) + len(report.Failed) + len(report.Skipped)
	report.Duration = time.Since(start)
	s.Metrics.ObserveCycle(report.Duration)
	log.Info("check-in cycle finished",
		"succeeded", len(report.Succeeded),
		"failed", len(report.Failed),
		"skipped", len(report.Skipped),
		"duration", report.Duration)
	return report, nil
}

// plan builds the task contexts and applies the ledger filters.
func (s *Scheduler) plan(ctx context.Context, date string, opts Options, report *Report) []job {
	log := s.log()
	var jobs []job
	for _, name := range s.Names() {
		if opts.Site != "" && name != opts.Site {
			continue
		}
		t, a, err := s.Registry.Build(name, s.Sites[name], s.BuildOptions)
		if err != nil {
			log.Error("failed to build target", "target", name, "error", err)
			s.skip(report, Entry{Target: name, Message: err.Error()}, SkipInvalid)
			continue
		}

		if opts.Force {
			if err := s.Ledger.Clear(ctx, date, name, true); err != nil {
				log.Warn("failed to clear ledger record", "target", name, "error", err)
			}
		} else if done, err := s.Ledger.Succeeded(ctx, date, name); err != nil {
			log.Warn("failed to read ledger record", "target", name, "error", err)
		} else if done {
			s.skip(report, Entry{Target: name, Message: "already succeeded today"}, SkipSucceeded)
			continue
		}

		if !opts.IgnoreBackoff {
			skip, reason, err := s.Ledger.ShouldSkip(ctx, date, name, s.Policy)
			if err != nil {
				log.Warn("failed to evaluate backoff", "target", name, "error", err)
			} else if skip {
				s.skip(report, Entry{Target: name, Message: reason}, SkipBackoff)
				continue
			}
		}
		jobs = append(jobs, job{task: t, adapter: a})
	}
	return jobs
}

func (s *Scheduler) skip(report *Report, e Entry, reason string) {
	s.log().Info("skipping target", "target", e.Target, "reason", e.Message)
	s.Metrics.Skip(reason)
	report.Skipped = append(report.Skipped, e)
}

// runOne checks in one target and writes its ledger record right away.
// A panic becomes a general failure of that target only.
func (s *Scheduler) runOne(ctx context.Context, date string, j job) (e Entry, ok bool) {
	t := j.task
	e = Entry{Target: t.Name}
	defer func() {
		if r := recover(); r != nil {
			t.Logger().Error("check-in panicked", "panic", r)
			reason := fmt.Sprintf("%s=> unexpected error: %v", t.Prefix, r)
			s.Metrics.RunFinished(t.Name, false)
			s.recordFailure(ctx, date, t, reason)
			e, ok = Entry{Target: t.Name, Message: reason, Category: task.CategoryGeneral.String()}, false
		}
	}()

	res := s.Coordinator.Run(ctx, t, j.adapter)
	e.Attempts = res.Attempts
	if !res.Succeeded {
		e.Message, e.Category = res.Reason, res.Category.String()
		s.recordFailure(ctx, date, t, res.Reason)
		return e, false
	}

	e.Message, e.Messages, e.Details = t.Result, t.Messages, t.Details
	out := ledger.Outcome{Message: t.Result, Messages: t.Messages, Details: t.Details}
	if err := s.Ledger.RecordSuccess(ctx, date, t.Name, out); err != nil {
		t.Logger().Error("failed to record success", "error", err)
	}
	return e, true
}

func (s *Scheduler) recordFailure(ctx context.Context, date string, t *task.Task, reason string) {
	if err := s.Ledger.RecordFailure(ctx, date, t.Name, reason); err != nil {
		t.Logger().Error("failed to record failure", "error", err)
	}
}
