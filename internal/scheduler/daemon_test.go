package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		in      string
		h, m    int
		wantErr bool
	}{
		{"08:00", 8, 0, false},
		{"23:59", 23, 59, false},
		{"24:00", 0, 0, true},
		{"noon", 0, 0, true},
	}
	for _, tt := range tests {
		h, m, err := ParseSchedule(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSchedule(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (h != tt.h || m != tt.m) {
			t.Errorf("ParseSchedule(%q) = %d:%d", tt.in, h, m)
		}
	}
}

func TestNextRun(t *testing.T) {
	base := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		h, m int
		want time.Time
	}{
		{"later today", 10, 30, time.Date(2024, 5, 10, 10, 30, 0, 0, time.UTC)},
		{"exactly now rolls over", 9, 0, time.Date(2024, 5, 11, 9, 0, 0, 0, time.UTC)},
		{"earlier today", 8, 0, time.Date(2024, 5, 11, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := NextRun(base, tt.h, tt.m); !got.Equal(tt.want) {
			t.Errorf("%s: NextRun = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDaemon_CycleCompletesBeforeStop(t *testing.T) {
	s := newScheduler(t, t.TempDir(), map[string]any{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fire := make(chan time.Time, 1)
	var waited time.Duration
	cycles := 0
	d := &Daemon{
		Scheduler: s,
		At:        "10:30",
		Now:       func() time.Time { return now },
		After: func(dur time.Duration) <-chan time.Time {
			waited = dur
			fire <- now
			return fire
		},
		OnReport: func(r Report) {
			cycles++
			if r.Date != today {
				t.Errorf("unexpected report date %s", r.Date)
			}
			cancel()
		},
	}
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if cycles != 1 {
		t.Fatalf("expected one cycle, got %d", cycles)
	}
	if waited != 90*time.Minute {
		t.Fatalf("expected to wait until 10:30, waited %s", waited)
	}
}

func TestDaemon_StopsWhileWaiting(t *testing.T) {
	s := newScheduler(t, t.TempDir(), map[string]any{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &Daemon{
		Scheduler: s,
		At:        "10:30",
		After:     func(time.Duration) <-chan time.Time { return make(chan time.Time) },
		OnReport:  func(Report) { t.Error("no cycle expected") },
	}
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestDaemon_InvalidSchedule(t *testing.T) {
	d := &Daemon{At: "whenever"}
	if err := d.Run(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}
