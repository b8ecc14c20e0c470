package status

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/loykin/checkin/internal/ledger"
	"github.com/loykin/checkin/internal/scheduler"
	"github.com/loykin/checkin/internal/store"
	"github.com/loykin/checkin/internal/util"
)

// Status display constants
const (
	defaultMessageWidth = 80 // messages are truncated to this many runes
)

// Item is one target's ledger line.
type Item struct {
	Target       string            `json:"target"`
	Status       string            `json:"status"`
	Message      string            `json:"message,omitempty"`
	Time         string            `json:"time,omitempty"`
	FailureCount int               `json:"failure_count"`
	Messages     string            `json:"messages,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// Info is the ledger state of one date.
type Info struct {
	Date      string `json:"date"`
	Succeeded []Item `json:"succeeded"`
	Failed    []Item `json:"failed"`
	Cleared   []Item `json:"cleared,omitempty"`
}

// Total is the number of targets holding a record.
func (i Info) Total() int { return len(i.Succeeded) + len(i.Failed) + len(i.Cleared) }

func items(recs []store.Record) []Item {
	out := make([]Item, 0, len(recs))
	for _, r := range recs {
		out = append(out, Item{
			Target:       r.Target,
			Status:       r.Status,
			Message:      r.Message,
			Time:         r.Time,
			FailureCount: r.FailureCount,
			Messages:     r.Messages,
			Details:      r.Details,
		})
	}
	return out
}

// FromSummary converts a ledger summary.
func FromSummary(s ledger.Summary) Info {
	return Info{Date: s.Date, Succeeded: items(s.Succeeded), Failed: items(s.Failed), Cleared: items(s.Cleared)}
}

// FromLedger collects the status of date; an empty date means today.
func FromLedger(ctx context.Context, l *ledger.Ledger, date string) (Info, error) {
	if date == "" {
		date = l.Today()
	}
	s, err := l.Summary(ctx, date)
	if err != nil {
		return Info{}, err
	}
	return FromSummary(s), nil
}

// FormatHuman returns a multiline summary for CLI output.
// verbose=true appends messages and details under each target.
func (i Info) FormatHuman(verbose bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "date: %s\nsucceeded: %d failed: %d cleared: %d\n", i.Date, len(i.Succeeded), len(i.Failed), len(i.Cleared))
	section := func(name string, list []Item) {
		if len(list) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", name)
		for _, it := range list {
			fmt.Fprintf(&b, "  %s failures=%d at=%s %s\n", it.Target, it.FailureCount, it.Time, util.Truncate(it.Message, defaultMessageWidth))
			if verbose {
				writeExtras(&b, it.Messages, it.Details)
			}
		}
	}
	section("succeeded", i.Succeeded)
	section("failed", i.Failed)
	section("cleared", i.Cleared)
	return b.String()
}

// FormatReport renders a finished cycle for CLI output.
func FormatReport(r scheduler.Report, verbose bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "date: %s total: %d succeeded: %d failed: %d skipped: %d\n",
		r.Date, r.Total, len(r.Succeeded), len(r.Failed), len(r.Skipped))
	section := func(name string, list []scheduler.Entry) {
		if len(list) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", name)
		for _, e := range list {
			line := "  " + e.Target
			if e.Category != "" && e.Category != "none" {
				line += " [" + e.Category + "]"
			}
			if e.Message != "" {
				line += " " + util.Truncate(e.Message, defaultMessageWidth)
			}
			b.WriteString(line + "\n")
			if verbose {
				writeExtras(&b, e.Messages, e.Details)
			}
		}
	}
	section("succeeded", r.Succeeded)
	section("failed", r.Failed)
	section("skipped", r.Skipped)
	return b.String()
}

func writeExtras(b *strings.Builder, messages string, details map[string]string) {
	if len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+details[k])
		}
		fmt.Fprintf(b, "    details: %s\n", strings.Join(parts, " "))
	}
	if m := strings.TrimSpace(messages); m != "" {
		for _, line := range strings.Split(m, "\n") {
			fmt.Fprintf(b, "    | %s\n", line)
		}
	}
}
