package task

import (
	"net/http"
	"strings"
	"testing"
)

func TestTask_FailPriority(t *testing.T) {
	tests := []struct {
		name         string
		fails        []Category
		wantReason   string
		wantCategory Category
	}{
		{
			name:         "single failure",
			fails:        []Category{CategoryGeneral},
			wantReason:   "r0",
			wantCategory: CategoryGeneral,
		},
		{
			name:         "lower priority does not mask connectivity",
			fails:        []Category{CategoryConnectivity, CategoryGeneral},
			wantReason:   "r0",
			wantCategory: CategoryConnectivity,
		},
		{
			name:         "authentication does not mask connectivity",
			fails:        []Category{CategoryConnectivity, CategoryAuthentication},
			wantReason:   "r0",
			wantCategory: CategoryConnectivity,
		},
		{
			name:         "higher priority overwrites",
			fails:        []Category{CategoryGeneral, CategoryAuthentication},
			wantReason:   "r1",
			wantCategory: CategoryAuthentication,
		},
		{
			name:         "equal priority overwrites",
			fails:        []Category{CategoryGeneral, CategoryGeneral},
			wantReason:   "r1",
			wantCategory: CategoryGeneral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := New("site", "generic", nil)
			for i, c := range tt.fails {
				tk.Fail("r"+string(rune('0'+i)), c)
			}
			if !tk.Failed {
				t.Fatal("expected failed task")
			}
			if tk.Reason != tt.wantReason || tk.Category != tt.wantCategory {
				t.Fatalf("got (%q, %v), want (%q, %v)", tk.Reason, tk.Category, tt.wantReason, tt.wantCategory)
			}
		})
	}
}

func TestTask_FailWithPrefix(t *testing.T) {
	tk := New("hdsky", "nexusphp", nil)
	tk.LastDate = "2026-10-17"
	tk.FailWithPrefix("no sign in", CategoryGeneral)
	if tk.Reason != "hdsky=> no sign in. (2026-10-17)" {
		t.Fatalf("unexpected reason %q", tk.Reason)
	}

	tk2 := New("ptt", "nexusphp", nil)
	tk2.FailWithPrefix("timeout", CategoryConnectivity)
	if !strings.HasSuffix(tk2.Reason, "(no record)") {
		t.Fatalf("unexpected reason %q", tk2.Reason)
	}
}

func TestTask_Reset(t *testing.T) {
	tk := New("site", "generic", nil)
	tk.Credential = "uid=1"
	tk.Result = "done"
	tk.Snapshot = "<html>"
	tk.Details["ratio"] = "1.0"
	tk.MessagesStatus = StatusFailed
	tk.Fail("boom", CategoryConnectivity)

	tk.Reset()

	if tk.Failed || tk.Reason != "" || tk.Category != CategoryNone {
		t.Fatalf("failure state not cleared: %+v", tk)
	}
	if tk.Result != "" || tk.Snapshot != "" || len(tk.Details) != 0 || tk.MessagesStatus != "" {
		t.Fatalf("run state not cleared: %+v", tk)
	}
	if tk.Credential != "uid=1" || tk.Name != "site" {
		t.Fatalf("identity or credential lost: %+v", tk)
	}
	// a fresh failure after reset must be recorded even at low priority
	tk.Fail("late", CategoryGeneral)
	if tk.Reason != "late" {
		t.Fatalf("reason after reset = %q", tk.Reason)
	}
}

func TestTask_MergeCookies(t *testing.T) {
	tk := New("site", "generic", nil)
	tk.Credential = "uid=1; pass=old; lang=en"

	tk.MergeCookies([]*http.Cookie{
		{Name: "pass", Value: "new"},
		{Name: "lang", MaxAge: -1},
		{Name: "cf_clearance", Value: "xyz"},
		{Name: "ghost", MaxAge: -1},
		nil,
	})

	want := "uid=1; pass=new; cf_clearance=xyz"
	if tk.Credential != want {
		t.Fatalf("credential = %q, want %q", tk.Credential, want)
	}
	if len(tk.Cookies()) != 3 {
		t.Fatalf("expected 3 cookies, got %d", len(tk.Cookies()))
	}
}

func TestParseCookies_SkipsMalformed(t *testing.T) {
	got := ParseCookies(" a=1 ;; junk ; =x; b = 2")
	if FormatCookies(got) != "a=1; b=2" {
		t.Fatalf("unexpected parse result %q", FormatCookies(got))
	}
}

func TestCategory_String(t *testing.T) {
	if CategoryConnectivity.String() != "connectivity" || CategoryNone.String() != "none" {
		t.Fatal("unexpected category names")
	}
	if !(CategoryConnectivity.Priority() > CategoryAuthentication.Priority() &&
		CategoryAuthentication.Priority() > CategoryGeneral.Priority()) {
		t.Fatal("priority order broken")
	}
}
