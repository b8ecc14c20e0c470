package task

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/loykin/checkin/internal/common"
)

// Category classifies why a task failed. Higher values win when a task
// fails more than once during a run.
type Category int

const (
	CategoryNone Category = iota
	CategoryGeneral
	CategoryAuthentication
	CategoryConnectivity
)

func (c Category) String() string {
	switch c {
	case CategoryGeneral:
		return "general"
	case CategoryAuthentication:
		return "authentication"
	case CategoryConnectivity:
		return "connectivity"
	default:
		return "none"
	}
}

// Priority returns the overwrite priority of c.
func (c Category) Priority() int { return int(c) }

// Collaborator statuses for messages/details.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Task is the mutable state of one target during a single scheduling cycle.
// A Task is owned by exactly one worker and is never shared.
type Task struct {
	Name    string
	Adapter string
	Config  map[string]any

	BaseURL        string
	Domain         string
	Headers        map[string]string
	UseCookieCloud bool
	Transport      string
	Prefix         string
	// LastDate is the date of the last known-good credential, if any.
	LastDate string

	Credential string
	Result     string
	Messages   string
	Details    map[string]string
	Snapshot   string

	Failed   bool
	Reason   string
	Category Category

	MessagesStatus string
	MessagesError  string
	DetailsStatus  string
	DetailsError   string

	logger *common.Logger
}

// New returns a fresh Task for target name handled by adapter.
func New(name, adapter string, logger *common.Logger) *Task {
	if logger == nil {
		logger = common.Discard()
	}
	return &Task{
		Name:    name,
		Adapter: adapter,
		Prefix:  name,
		Config:  map[string]any{},
		Headers: map[string]string{},
		Details: map[string]string{},
		logger:  logger.WithTarget(name),
	}
}

// Logger returns the task scoped logger.
func (t *Task) Logger() *common.Logger {
	if t.logger == nil {
		t.logger = common.Discard().WithTarget(t.Name)
	}
	return t.logger
}

// Fail marks the task failed. The stored reason is replaced only when c has
// at least the priority of the category already recorded.
func (t *Task) Fail(reason string, c Category) {
	t.Failed = true
	if t.Reason == "" || c.Priority() >= t.Category.Priority() {
		t.Reason = reason
		t.Category = c
	}
	t.Logger().Debug("task failed", "reason", reason, "category", c.String(), "kept_reason", t.Reason)
}

// FailWithPrefix fails the task with "<prefix>=> <reason>. (<last date>)".
func (t *Task) FailWithPrefix(reason string, c Category) {
	last := t.LastDate
	if last == "" {
		last = "no record"
	}
	t.Fail(fmt.Sprintf("%s=> %s. (%s)", t.Prefix, reason, last), c)
}

// Reset clears run state before a new attempt. Identity, configuration
// and the working credential are kept.
func (t *Task) Reset() {
	t.Result = ""
	t.Messages = ""
	t.Details = map[string]string{}
	t.Snapshot = ""
	t.Failed = false
	t.Reason = ""
	t.Category = CategoryNone
	t.MessagesStatus, t.MessagesError = "", ""
	t.DetailsStatus, t.DetailsError = "", ""
}

// Cookies parses the credential as a Cookie header value.
func (t *Task) Cookies() []*http.Cookie {
	return ParseCookies(t.Credential)
}

// MergeCookies folds server-issued cookies into the credential. Expired
// cookies are removed, others replace the value of the same name or are appended.
func (t *Task) MergeCookies(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	current := ParseCookies(t.Credential)
	index := make(map[string]int, len(current))
	for i, c := range current {
		index[c.Name] = i
	}
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		i, seen := index[c.Name]
		expired := c.MaxAge < 0
		switch {
		case expired && seen:
			current[i] = nil
		case expired:
		case seen:
			current[i] = &http.Cookie{Name: c.Name, Value: c.Value}
		default:
			index[c.Name] = len(current)
			current = append(current, &http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	t.Credential = FormatCookies(current)
}

// ParseCookies splits a "k=v; k2=v2" header value. Malformed pairs are skipped.
func ParseCookies(raw string) []*http.Cookie {
	var out []*http.Cookie
	for _, part := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		out = append(out, &http.Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return out
}

// FormatCookies renders cookies as a Cookie header value. nil entries are skipped.
func FormatCookies(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
