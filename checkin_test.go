package checkin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loykin/checkin/internal/task"
	"github.com/loykin/checkin/internal/workflow"
)

func TestEngine_RunSummaryClear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<p>签到成功</p>"))
	}))
	defer srv.Close()

	e, err := Open(Options{
		Store: StoreConfig{Type: "sqlite", Dir: t.TempDir()},
		Sites: map[string]any{
			"alpha": map[string]any{
				"adapter": AdapterGeneric,
				"url":     srv.URL,
				"cookie":  "uid=1",
				"steps":   []any{map[string]any{"url": "/attendance.php", "succeed": []any{"签到成功"}}},
			},
		},
		MaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = e.Close() }()
	ctx := context.Background()

	report, err := e.Run(ctx, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Succeeded) != 1 || report.ExitCode() != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	s, err := e.Summary(ctx, "")
	if err != nil || len(s.Succeeded) != 1 || s.Succeeded[0].Message != "签到成功" {
		t.Fatalf("unexpected summary %+v %v", s, err)
	}

	if report, _ = e.Run(ctx, RunOptions{}); len(report.Skipped) != 1 {
		t.Fatalf("second run should skip, got %+v", report)
	}
	if err := e.Clear(ctx, "", "alpha"); err != nil {
		t.Fatal(err)
	}
	if report, _ = e.Run(ctx, RunOptions{}); len(report.Succeeded) != 1 {
		t.Fatalf("cleared site should run again, got %+v", report)
	}
}

// fixed is a custom adapter with a single hard-coded step.
type fixed struct{}

func (fixed) Workflow(*task.Task) ([]workflow.Step, error) {
	return []workflow.Step{{URL: "/ping", Success: []workflow.Pattern{workflow.Re("pong")}}}, nil
}

func TestOpen_CustomAdapterAndValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	adapters := map[string]AdapterFactory{"fixed": func(map[string]any) (Adapter, error) { return fixed{}, nil }}
	e, err := Open(Options{
		Store:    StoreConfig{Dir: t.TempDir()},
		Sites:    map[string]any{"site": map[string]any{"adapter": "fixed", "url": srv.URL, "cookie": "c=1"}},
		Adapters: adapters,
		Logger:   NewJSONLogger("error"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = e.Close() }()
	report, err := e.Run(context.Background(), RunOptions{})
	if err != nil || len(report.Succeeded) != 1 {
		t.Fatalf("unexpected report %+v %v", report, err)
	}

	_, err = Open(Options{
		Store: StoreConfig{Dir: t.TempDir()},
		Sites: map[string]any{"bad": map[string]any{"adapter": "nope"}},
	})
	if err == nil || !strings.Contains(err.Error(), "site bad") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewLogger_Level(t *testing.T) {
	if lvl := NewLogger("debug").Level().String(); lvl != "debug" {
		t.Fatalf("unexpected level %s", lvl)
	}
	if lvl := NewLogger("bogus").Level().String(); lvl != "info" {
		t.Fatalf("unknown levels should fall back to info, got %s", lvl)
	}
}
