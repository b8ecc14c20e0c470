package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RunFinished("a", true)
	m.RunFinished("a", false)
	m.RunFinished("a", false)
	m.Attempt("a")
	m.Refresh("a")
	m.Skip("succeeded")
	m.ObserveCycle(3 * time.Second)

	if got := testutil.ToFloat64(m.Runs.WithLabelValues("a", StatusFailed)); got != 2 {
		t.Fatalf("failed runs = %v", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues("a", StatusSuccess)); got != 1 {
		t.Fatalf("successful runs = %v", got)
	}
	if got := testutil.ToFloat64(m.Refreshes.WithLabelValues("a")); got != 1 {
		t.Fatalf("refreshes = %v", got)
	}
	if got := testutil.CollectAndCount(m.CycleDuration); got != 1 {
		t.Fatalf("cycle histogram series = %d", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RunFinished("a", true)
	m.Attempt("a")
	m.Refresh("a")
	m.Skip("x")
	m.ObserveCycle(time.Second)
}

func TestMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration panic")
		}
	}()
	New(reg)
}
