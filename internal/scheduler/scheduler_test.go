package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/checkin/internal/adapter"
	"github.com/loykin/checkin/internal/checkin"
	"github.com/loykin/checkin/internal/httpc"
	"github.com/loykin/checkin/internal/ledger"
	"github.com/loykin/checkin/internal/store"
	"github.com/loykin/checkin/internal/store/file"
	"github.com/loykin/checkin/internal/task"
	"github.com/loykin/checkin/internal/transport"
	"github.com/loykin/checkin/internal/workflow"
)

var now = time.Date(2024, 5, 10, 9, 0, 0, 0, time.Local)

const today = "2024-05-10"

type attendance struct{ panics bool }

func (a attendance) Workflow(*task.Task) ([]workflow.Step, error) {
	if a.panics {
		panic("adapter exploded")
	}
	return []workflow.Step{{URL: "/attendance.php", Success: []workflow.Pattern{workflow.Re("签到成功[^<]*")}}}, nil
}

func registry() *adapter.Registry {
	r := adapter.NewRegistry()
	r.Register("fake", func(spec map[string]any) (adapter.Adapter, error) {
		if spec["broken"] == true {
			return nil, errors.New("broken config")
		}
		return attendance{panics: spec["panics"] == true}, nil
	})
	return r
}

func site(url string) map[string]any {
	return map[string]any{"adapter": "fake", "url": url, "cookie": "uid=1"}
}

func newScheduler(t *testing.T, dir string, sites map[string]any, workers int) *Scheduler {
	t.Helper()
	backend, err := file.Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	l := ledger.New(backend, nil)
	l.Now = func() time.Time { return now }
	return &Scheduler{
		Registry: registry(),
		Ledger:   l,
		Coordinator: &checkin.Coordinator{
			Executor: &checkin.Executor{
				Transports: transport.Set{Direct: transport.NewDirect((&httpc.Httpc{Timeout: 3 * time.Second}).New())},
				Timeout:    3 * time.Second,
			},
			MaxAttempts: 1,
		},
		Sites:      sites,
		MaxWorkers: workers,
		Policy:     ledger.DefaultPolicy(),
	}
}

func okServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		_, _ = w.Write([]byte("<p>签到成功 +10</p>"))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestScheduler_TwoWorkersCompleteIndependently(t *testing.T) {
	var mu sync.Mutex
	inflight, peak := 0, 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inflight++
		if inflight > peak {
			peak = inflight
		}
		mu.Unlock()
		// hold each request until the other one arrives
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			n := peak
			mu.Unlock()
			if n >= 2 {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		_, _ = w.Write([]byte("<p>签到成功 " + r.Host + "</p>"))
		mu.Lock()
		inflight--
		mu.Unlock()
	}))
	defer srv.Close()

	dir := t.TempDir()
	s := newScheduler(t, dir, map[string]any{"alpha": site(srv.URL), "beta": site(srv.URL)}, 2)
	report, err := s.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Succeeded) != 2 || len(report.Failed) != 0 || report.Total != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Succeeded[0].Target != "alpha" || report.Succeeded[1].Target != "beta" {
		t.Fatalf("report not sorted: %+v", report.Succeeded)
	}
	mu.Lock()
	if peak != 2 {
		t.Errorf("expected both targets in flight together, peak = %d", peak)
	}
	mu.Unlock()

	reopened, err := file.Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	recs, err := reopened.ListRecords(context.Background(), today)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected two records, got %+v", recs)
	}
	for _, r := range recs {
		if r.Status != store.StatusSuccess || r.FailureCount != 0 || !strings.Contains(r.Message, "签到成功") {
			t.Fatalf("unexpected record %+v", r)
		}
	}
}

func TestScheduler_SkipsSucceededUnlessForced(t *testing.T) {
	srv, calls := okServer(t)
	s := newScheduler(t, t.TempDir(), map[string]any{"alpha": site(srv.URL)}, 1)
	ctx := context.Background()

	if _, err := s.Run(ctx, Options{}); err != nil {
		t.Fatal(err)
	}
	report, _ := s.Run(ctx, Options{})
	if len(report.Skipped) != 1 || *calls != 1 {
		t.Fatalf("second run should skip, report %+v calls %d", report, *calls)
	}
	if report.ExitCode() != 0 {
		t.Fatal("skips are not failures")
	}

	report, _ = s.Run(ctx, Options{Force: true})
	if len(report.Succeeded) != 1 || *calls != 2 {
		t.Fatalf("forced run should re-run, report %+v calls %d", report, *calls)
	}
}

func TestScheduler_BackoffAndIgnoreBackoff(t *testing.T) {
	srv, calls := okServer(t)
	s := newScheduler(t, t.TempDir(), map[string]any{"alpha": site(srv.URL)}, 1)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.Ledger.RecordFailure(ctx, today, "alpha", "boom"); err != nil {
			t.Fatal(err)
		}
	}

	report, _ := s.Run(ctx, Options{})
	if len(report.Skipped) != 1 || !strings.Contains(report.Skipped[0].Message, "3 consecutive failures") || *calls != 0 {
		t.Fatalf("expected backoff skip, got %+v", report)
	}
	report, _ = s.Run(ctx, Options{Force: true})
	if len(report.Skipped) != 1 || *calls != 0 {
		t.Fatalf("force alone keeps the backoff, got %+v", report)
	}
	report, _ = s.Run(ctx, Options{IgnoreBackoff: true})
	if len(report.Succeeded) != 1 || *calls != 1 {
		t.Fatalf("ignore backoff should run, got %+v", report)
	}
	r, _, _ := s.Ledger.Get(ctx, today, "alpha")
	if r.Status != store.StatusSuccess || r.FailureCount != 0 {
		t.Fatalf("success should reset the count: %+v", r)
	}
}

func TestScheduler_FailuresAreRecordedImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<p>nothing</p>"))
	}))
	defer srv.Close()
	s := newScheduler(t, t.TempDir(), map[string]any{"alpha": site(srv.URL)}, 1)
	ctx := context.Background()

	report, _ := s.Run(ctx, Options{})
	if len(report.Failed) != 1 || report.ExitCode() != 1 {
		t.Fatalf("expected failure, got %+v", report)
	}
	if report.Failed[0].Category != task.CategoryGeneral.String() || report.Failed[0].Attempts != 1 {
		t.Fatalf("unexpected entry %+v", report.Failed[0])
	}
	r, ok, _ := s.Ledger.Get(ctx, today, "alpha")
	if !ok || r.Status != store.StatusFailed || r.FailureCount != 1 || !strings.Contains(r.Message, "check-in not completed") {
		t.Fatalf("unexpected record %+v", r)
	}
}

func TestScheduler_PanicAndInvalidTargetsDoNotAbortCycle(t *testing.T) {
	srv, _ := okServer(t)
	panicky := site(srv.URL)
	panicky["panics"] = true
	broken := site(srv.URL)
	broken["broken"] = true
	s := newScheduler(t, t.TempDir(), map[string]any{
		"alpha": site(srv.URL),
		"beta":  panicky,
		"gamma": broken,
	}, 2)
	ctx := context.Background()

	report, err := s.Run(ctx, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Succeeded) != 1 || len(report.Failed) != 1 || len(report.Skipped) != 1 || report.Total != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !strings.Contains(report.Failed[0].Message, "adapter exploded") {
		t.Fatalf("panic not reported: %+v", report.Failed[0])
	}
	r, ok, _ := s.Ledger.Get(ctx, today, "beta")
	if !ok || r.Status != store.StatusFailed {
		t.Fatalf("panic should be recorded as failure: %+v", r)
	}
	if _, ok, _ := s.Ledger.Get(ctx, today, "gamma"); ok {
		t.Fatal("invalid target must not be recorded")
	}
}

func TestScheduler_SiteSelection(t *testing.T) {
	srv, calls := okServer(t)
	s := newScheduler(t, t.TempDir(), map[string]any{"alpha": site(srv.URL), "beta": site(srv.URL)}, 1)
	ctx := context.Background()

	report, err := s.Run(ctx, Options{Site: "beta"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 1 || report.Succeeded[0].Target != "beta" || *calls != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if _, err := s.Run(ctx, Options{Site: "gamma"}); !errors.Is(err, ErrUnknownSite) {
		t.Fatalf("expected ErrUnknownSite, got %v", err)
	}
}

func TestScheduler_PrunesOldDates(t *testing.T) {
	s := newScheduler(t, t.TempDir(), map[string]any{}, 1)
	ctx := context.Background()
	if err := s.Ledger.RecordFailure(ctx, "2024-04-01", "alpha", "old"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx, Options{}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Ledger.Get(ctx, "2024-04-01", "alpha"); ok {
		t.Fatal("record past retention should be pruned")
	}
}

func TestScheduler_CancelMidCycleFinishesEveryTarget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			cancel()
			time.Sleep(50 * time.Millisecond)
		})
		_, _ = w.Write([]byte("<p>签到成功 +10</p>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	s := newScheduler(t, dir, map[string]any{"a": site(srv.URL), "b": site(srv.URL), "c": site(srv.URL)}, 1)
	report, err := s.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Succeeded) != 3 || len(report.Failed) != 0 {
		t.Fatalf("expected every target to finish, got succeeded=%d failed=%+v", len(report.Succeeded), report.Failed)
	}
	for _, name := range []string{"a", "b", "c"} {
		rec, ok, err := s.Ledger.Get(context.Background(), today, name)
		if err != nil || !ok {
			t.Fatalf("%s: missing record (%v)", name, err)
		}
		if rec.Status != store.StatusSuccess || rec.FailureCount != 0 || strings.Contains(rec.Message, "canceled") {
			t.Fatalf("%s: unexpected cancellation failure %+v", name, rec)
		}
	}

	// the next cycle does not start once the context is done
	if _, err := s.Run(ctx, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
