// Package checkin runs one target's check-in: a single attempt through the
// Executor, bounded retries with credential refresh through the Coordinator.
package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/checkin/internal/adapter"
	"github.com/loykin/checkin/internal/task"
	"github.com/loykin/checkin/internal/transport"
	"github.com/loykin/checkin/internal/workflow"
)

// Executor performs one attempt: workflow, then the optional collaborators.
type Executor struct {
	Transports transport.Set
	// Timeout bounds every step request.
	Timeout     time.Duration
	GetMessages bool
	GetDetails  bool
}

// Execute runs a on t and reports whether the check-in succeeded.
// Collaborator failures only degrade t.MessagesStatus / t.DetailsStatus.
func (e *Executor) Execute(ctx context.Context, t *task.Task, a adapter.Adapter) bool {
	tr, err := e.Transports.For(t.Transport)
	if err != nil {
		t.FailWithPrefix(err.Error(), task.CategoryGeneral)
		return false
	}
	wf, err := adapter.Workflow(a, t)
	if err != nil {
		t.FailWithPrefix(fmt.Sprintf("build workflow: %v", err), task.CategoryGeneral)
		return false
	}

	r := &workflow.Runner{Transport: tr, Timeout: e.Timeout}
	if !r.Run(ctx, t, wf) {
		return false
	}

	if mf, ok := a.(adapter.MessageFetcher); ok && e.GetMessages {
		e.messages(ctx, t, tr, mf)
	}
	if df, ok := a.(adapter.DetailFetcher); ok && e.GetDetails {
		e.details(ctx, t, tr, df)
	}
	return true
}

func (e *Executor) messages(ctx context.Context, t *task.Task, tr transport.Transport, mf adapter.MessageFetcher) {
	defer func() {
		if r := recover(); r != nil {
			t.MessagesStatus = task.StatusFailed
			t.MessagesError = fmt.Sprintf("panic: %v", r)
			t.Logger().Error("message fetch panicked", "panic", r)
		}
	}()
	msgs, err := mf.FetchMessages(ctx, t, tr)
	t.Messages = msgs
	if err != nil {
		t.MessagesStatus, t.MessagesError = task.StatusFailed, err.Error()
		t.Logger().Warn("failed to fetch messages", "error", err)
		return
	}
	t.MessagesStatus = task.StatusOK
}

func (e *Executor) details(ctx context.Context, t *task.Task, tr transport.Transport, df adapter.DetailFetcher) {
	defer func() {
		if r := recover(); r != nil {
			t.DetailsStatus = task.StatusFailed
			t.DetailsError = fmt.Sprintf("panic: %v", r)
			t.Logger().Error("detail fetch panicked", "panic", r)
		}
	}()
	d, err := df.FetchDetails(ctx, t, tr)
	for k, v := range d {
		t.Details[k] = v
	}
	if err != nil {
		t.DetailsStatus, t.DetailsError = task.StatusFailed, err.Error()
		t.Logger().Warn("failed to fetch details", "error", err)
		return
	}
	t.DetailsStatus = task.StatusOK
}
