package status

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/loykin/checkin/internal/ledger"
	"github.com/loykin/checkin/internal/scheduler"
	"github.com/loykin/checkin/internal/store/file"
)

func TestFormatHuman_Sections(t *testing.T) {
	i := Info{
		Date:      "2024-05-10",
		Succeeded: []Item{{Target: "alpha", Status: "success", Time: "t1", Message: "签到成功", Details: map[string]string{"points": "10", "a": "1"}}},
		Failed:    []Item{{Target: "beta", Status: "failed", Time: "t2", FailureCount: 2, Message: "beta=> HTTP 502"}},
	}
	got := i.FormatHuman(false)
	want := "date: 2024-05-10\nsucceeded: 1 failed: 1 cleared: 0\n" +
		"succeeded:\n  alpha failures=0 at=t1 签到成功\n" +
		"failed:\n  beta failures=2 at=t2 beta=> HTTP 502\n"
	if got != want {
		t.Fatalf("FormatHuman(false) mismatch\nwant: %q\n got: %q", want, got)
	}
	if v := i.FormatHuman(true); !strings.Contains(v, "    details: a=1 points=10\n") {
		t.Fatalf("verbose output misses details:\n%s", v)
	}
	if i.Total() != 2 {
		t.Fatalf("Total() = %d", i.Total())
	}
}

func TestFormatHuman_TruncatesMessages(t *testing.T) {
	long := strings.Repeat("x", 200)
	got := Info{Date: "d", Failed: []Item{{Target: "t", Message: long}}}.FormatHuman(false)
	if strings.Contains(got, long) || !strings.Contains(got, "...") {
		t.Fatalf("message not truncated:\n%s", got)
	}
}

func TestFormatReport(t *testing.T) {
	r := scheduler.Report{
		Date:      "2024-05-10",
		Total:     3,
		Succeeded: []scheduler.Entry{{Target: "alpha", Message: "ok", Messages: "\nTitle: hi\nLink: x\nbody"}},
		Failed:    []scheduler.Entry{{Target: "beta", Message: "credential rejected", Category: "authentication"}},
		Skipped:   []scheduler.Entry{{Target: "gamma", Message: "already succeeded today"}},
	}
	got := FormatReport(r, true)
	re := regexp.MustCompile(`(?s)^date: 2024-05-10 total: 3 succeeded: 1 failed: 1 skipped: 1\n` +
		`succeeded:\n  alpha ok\n    \| Title: hi\n    \| Link: x\n    \| body\n` +
		`failed:\n  beta \[authentication\] credential rejected\n` +
		`skipped:\n  gamma already succeeded today\n$`)
	if !re.MatchString(got) {
		t.Fatalf("unexpected report:\n%s", got)
	}
}

func TestFromLedger(t *testing.T) {
	backend, err := file.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	l := ledger.New(backend, nil)
	l.Now = func() time.Time { return time.Date(2024, 5, 10, 9, 0, 0, 0, time.Local) }
	ctx := context.Background()
	_ = l.RecordSuccess(ctx, "2024-05-10", "alpha", ledger.Outcome{Message: "ok"})
	_ = l.RecordFailure(ctx, "2024-05-10", "beta", "boom")

	info, err := FromLedger(ctx, l, "")
	if err != nil {
		t.Fatal(err)
	}
	if info.Date != "2024-05-10" || len(info.Succeeded) != 1 || len(info.Failed) != 1 {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Failed[0].Target != "beta" || info.Failed[0].FailureCount != 1 {
		t.Fatalf("unexpected failed item %+v", info.Failed[0])
	}
}
