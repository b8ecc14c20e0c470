package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/checkin/internal/constants"
	"github.com/loykin/checkin/internal/task"
	"github.com/loykin/checkin/internal/transport"
)

// Runner executes workflows strictly step by step.
type Runner struct {
	Transport transport.Transport
	// Timeout bounds every step request. Zero means the default of 60s.
	Timeout time.Duration
}

type stepContent struct {
	resp    *transport.Response
	err     error
	content string
	allowed []string
}

// Run executes wf against t and reports whether t ended without failure.
// The first step whose state differs from its Expect state stops the run.
// Stopping on an early Succeeded (e.g. already checked in today) is not a failure.
func (r *Runner) Run(ctx context.Context, t *task.Task, wf Workflow) bool {
	if t.BaseURL == "" || len(wf) == 0 {
		t.FailWithPrefix("base url or workflow is empty", task.CategoryGeneral)
		return false
	}

	var last *stepContent
	for i := range wf {
		step := wf[i]
		log := t.Logger().WithStep(i, step.Name)

		stepURL, err := Resolve(t.BaseURL, step.URL)
		if err != nil {
			t.FailWithPrefix(fmt.Sprintf("invalid step url %q", step.URL), task.CategoryGeneral)
			return false
		}
		allowed, err := r.allowed(t.BaseURL, stepURL, step.ResponseURLs)
		if err != nil {
			t.FailWithPrefix(err.Error(), task.CategoryGeneral)
			return false
		}

		var cur *stepContent
		if step.UseLastContent {
			if last == nil {
				t.FailWithPrefix(fmt.Sprintf("step %d reuses content but has no predecessor", i), task.CategoryGeneral)
				return false
			}
			cur = &stepContent{resp: last.resp, err: last.err, content: last.content, allowed: last.allowed}
		} else {
			cur = r.call(ctx, t, step, stepURL, last)
			cur.allowed = allowed
			if errors.Is(cur.err, ErrBuild) {
				t.FailWithPrefix(cur.err.Error(), task.CategoryGeneral)
				return false
			}
			if cur.resp != nil {
				t.MergeCookies(cur.resp.Cookies)
			}
		}
		if step.BaseContent {
			t.Snapshot = cur.content
		}

		out := Classify(Input{
			Response: cur.resp,
			Err:      cur.err,
			Content:  cur.content,
			Allowed:  cur.allowed,
			Step:     &step,
			Result:   t.Result,
		})
		if i == len(wf)-1 {
			out = FinalState(out)
		}
		Apply(t, out)
		log.Debug("step classified", "state", out.State.String(), "expect", step.Expect.String(), "url", stepURL)

		if out.State != step.Expect {
			if out.State == Succeeded {
				log.Info("check-in already completed", "result", t.Result)
				return !t.Failed
			}
			if !t.Failed {
				t.FailWithPrefix(fmt.Sprintf("step %s ended in %s, expected %s", stepName(i, step), out.State, step.Expect), task.CategoryGeneral)
			}
			return false
		}
		if t.Failed {
			return false
		}
		last = cur
	}
	return true
}

func (r *Runner) call(ctx context.Context, t *task.Task, step Step, stepURL string, last *stepContent) *stepContent {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultRequestTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h := step.Handler
	if h == nil {
		h = Get
	}
	lastContent := ""
	if last != nil {
		lastContent = last.content
	}
	resp, err := h(cctx, Call{Task: t, URL: stepURL, Last: lastContent, Transport: r.Transport})
	if err != nil {
		return &stepContent{err: err}
	}
	text, err := resp.Text()
	if err != nil {
		return &stepContent{resp: resp, err: err}
	}
	return &stepContent{resp: resp, content: text}
}

func (r *Runner) allowed(base, stepURL string, raw []string) ([]string, error) {
	if len(raw) == 0 {
		return []string{stepURL}, nil
	}
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		abs, err := Resolve(base, u)
		if err != nil {
			return nil, fmt.Errorf("invalid response url %q", u)
		}
		out = append(out, abs)
	}
	return out, nil
}

func stepName(i int, s Step) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("#%d", i)
}
