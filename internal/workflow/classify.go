package workflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/loykin/checkin/internal/task"
	"github.com/loykin/checkin/internal/transport"
	"github.com/loykin/checkin/internal/util"
)

// Input is everything the classifier looks at for one step.
type Input struct {
	Response *transport.Response
	// Err is the transport or decoding error, if the call failed.
	Err     error
	Content string
	// Allowed holds the resolved acceptable final URLs.
	Allowed []string
	Step    *Step
	// Result is the message accumulated by earlier steps.
	Result string
}

// Outcome is the classifier verdict.
type Outcome struct {
	State    State
	Message  string
	Reason   string
	Category task.Category
}

// Classify maps a step response to a State. The first matching rule wins:
// missing response, redirect, maintenance, anti-bot, rejected credential,
// success, wrong answer, error status, transient error page, not done.
func Classify(in Input) Outcome {
	if in.Err != nil || in.Response == nil {
		return Outcome{State: NetworkError, Reason: networkReason(in.Err), Category: task.CategoryConnectivity}
	}

	if !urlAllowed(in.Response.URL, in.Allowed) {
		cat := task.CategoryConnectivity
		if loginURLRe.MatchString(in.Response.URL) {
			cat = task.CategoryAuthentication
		}
		return Outcome{State: URLRedirect, Reason: "redirected to " + in.Response.URL, Category: cat}
	}

	if in.Response.StatusCode == http.StatusServiceUnavailable {
		return Outcome{State: Maintenance, Reason: "site unavailable (HTTP 503)", Category: task.CategoryConnectivity}
	}
	if name, ok := firstMatch(maintenanceSignatures, in.Content); ok {
		return Outcome{State: Maintenance, Reason: "site under maintenance: " + name, Category: task.CategoryConnectivity}
	}
	if name, ok := firstMatch(antiBotSignatures, in.Content); ok {
		return Outcome{State: Blocked, Reason: "blocked by anti-bot challenge: " + name, Category: task.CategoryConnectivity}
	}

	step := in.Step
	if step == nil {
		step = &Step{}
	}
	if step.Auth != nil && step.Auth.MatchString(in.Content) {
		return Outcome{State: AuthExpired, Reason: "credential rejected", Category: task.CategoryAuthentication}
	}

	if len(step.Success) == 0 {
		return Outcome{State: Succeeded, Message: in.Result}
	}
	for _, p := range step.Success {
		if raw, ok := p.Match(in.Content); ok {
			return Outcome{State: Succeeded, Message: joinMessage(util.StripMarkup(raw), in.Result)}
		}
	}

	if step.Fail != nil && step.Fail.MatchString(in.Content) {
		return Outcome{State: WrongAnswer, Reason: "answer rejected", Category: task.CategoryGeneral}
	}
	if !in.Response.OK() {
		return Outcome{State: NetworkError, Reason: fmt.Sprintf("HTTP %d", in.Response.StatusCode), Category: task.CategoryConnectivity}
	}
	if name, ok := firstMatch(transientSignatures, in.Content); ok {
		return Outcome{State: NetworkError, Reason: name, Category: task.CategoryConnectivity}
	}
	return Outcome{State: NotYetDone, Reason: "no success pattern matched", Category: task.CategoryGeneral}
}

// FinalState promotes NotYetDone to CheckinFailed. Applied to the last step only.
func FinalState(o Outcome) Outcome {
	if o.State == NotYetDone {
		o.State = CheckinFailed
		o.Reason = "check-in not completed: " + o.Reason
		o.Category = task.CategoryGeneral
	}
	return o
}

// Apply records o on t: success messages become the task result, terminal
// failure states fail the task. NotYetDone leaves t untouched.
func Apply(t *task.Task, o Outcome) {
	switch o.State {
	case Succeeded:
		if o.Message != "" {
			t.Result = o.Message
		}
	case NotYetDone:
	default:
		t.FailWithPrefix(o.Reason, o.Category)
	}
}

func networkReason(err error) string {
	if err == nil {
		return "no response"
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return "request timed out"
	}
	return "request failed: " + err.Error()
}

func joinMessage(msg, prev string) string {
	switch {
	case prev == "":
		return msg
	case msg == "":
		return prev
	default:
		return msg + " " + prev
	}
}

func urlAllowed(final string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if sameURL(final, a) {
			return true
		}
	}
	return false
}

// sameURL compares URLs ignoring fragment, host case and a bare trailing slash.
func sameURL(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	norm := func(u *url.URL) string {
		p := u.EscapedPath()
		if p == "" {
			p = "/"
		}
		return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + p + "?" + u.RawQuery
	}
	return norm(ua) == norm(ub)
}
