package checkin

import (
	"context"

	"github.com/loykin/checkin/internal/adapter"
	"github.com/loykin/checkin/internal/constants"
	"github.com/loykin/checkin/internal/credential"
	"github.com/loykin/checkin/internal/metrics"
	"github.com/loykin/checkin/internal/retry"
	"github.com/loykin/checkin/internal/task"
)

// Result summarises a coordinated run of one target.
type Result struct {
	Succeeded bool
	Attempts  int
	Refreshes int
	Reason    string
	Category  task.Category
}

// Coordinator wraps the Executor in bounded retries. Authentication
// failures refresh the credential from the external source first.
type Coordinator struct {
	Executor *Executor
	// Credentials holds last known-good credentials; nil disables them.
	Credentials *credential.Store
	// Source is the external credential provider; nil disables refreshes.
	Source      credential.Source
	MaxAttempts int
	// Retry sets the delay between attempts; nil means no delay.
	Retry *retry.Config
	// Backup writes the working credential back after a success.
	Backup  bool
	Metrics *metrics.Metrics
}

func (c *Coordinator) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return constants.DefaultMaxAttempts
	}
	return c.MaxAttempts
}

// Run checks in t with adapter a.
func (c *Coordinator) Run(ctx context.Context, t *task.Task, a adapter.Adapter) Result {
	c.resolve(ctx, t)

	var res Result
	maxAttempts := c.maxAttempts()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		log := t.Logger().WithAttempt(attempt, maxAttempts)
		if attempt > 1 {
			if !c.wait(ctx, attempt-1) {
				log.Warn("retry cancelled", "reason", t.Reason)
				break
			}
			t.Reset()
		}
		res.Attempts = attempt
		c.Metrics.Attempt(t.Name)

		if c.Executor.Execute(ctx, t, a) {
			res.Succeeded = true
			log.Info("check-in succeeded", "result", t.Result)
			c.backup(ctx, t)
			break
		}
		log.Warn("check-in attempt failed", "reason", t.Reason, "category", t.Category.String())

		if t.Category == task.CategoryAuthentication && attempt < maxAttempts && c.refresh(ctx, t) {
			res.Refreshes++
		}
	}

	res.Reason, res.Category = t.Reason, t.Category
	c.Metrics.RunFinished(t.Name, res.Succeeded)
	return res
}

// resolve picks the starting credential: the stored record, then the
// external source when the target opts in, then the configured value.
func (c *Coordinator) resolve(ctx context.Context, t *task.Task) {
	log := t.Logger()
	if c.Credentials != nil {
		rec, ok, err := c.Credentials.Get(ctx, t.Name)
		if err != nil {
			log.Warn("failed to load stored credential", "error", err)
		} else if ok {
			t.Credential, t.LastDate = rec.Value, rec.Date
			log.Debug("using stored credential", "date", rec.Date)
			return
		}
	}
	if c.Source != nil && t.UseCookieCloud {
		v, err := c.Source.Get(ctx, t.Domain)
		if err != nil {
			log.Warn("external credential unavailable", "domain", t.Domain, "error", err)
		} else if v != "" {
			t.Credential = v
			log.Debug("using external credential", "domain", t.Domain)
		}
	}
}

func (c *Coordinator) refresh(ctx context.Context, t *task.Task) bool {
	if c.Source == nil || !t.UseCookieCloud {
		return false
	}
	v, err := c.Source.Refresh(ctx, t.Domain)
	if err != nil {
		t.Logger().Warn("credential refresh failed", "domain", t.Domain, "error", err)
		return false
	}
	c.Metrics.Refresh(t.Name)
	if v == "" {
		return true
	}
	t.Credential = v
	t.Logger().Info("credential refreshed", "domain", t.Domain)
	return true
}

func (c *Coordinator) backup(ctx context.Context, t *task.Task) {
	if !c.Backup || c.Credentials == nil || t.Credential == "" {
		return
	}
	if err := c.Credentials.Put(ctx, t.Name, t.Credential); err != nil {
		t.Logger().Error("failed to store credential", "error", err)
	}
}

func (c *Coordinator) wait(ctx context.Context, attempt int) bool {
	if c.Retry == nil {
		return true
	}
	return retry.Sleep(ctx, c.Retry.Delay(attempt))
}
