package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/checkin/internal/adapter"
	"github.com/loykin/checkin/internal/constants"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_NotRegularFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for directory path (not a regular file)")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "sites:\n  pt.example: uid=1\n")
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.MaxWorkers != 1 || doc.MaxAttempts != 3 || doc.RetentionDays != 7 {
		t.Fatalf("unexpected numeric defaults %+v", doc)
	}
	if doc.RequestTimeout != constants.DefaultRequestTimeout || doc.FailedRetryInterval != 2*time.Hour {
		t.Fatalf("unexpected duration defaults %v %v", doc.RequestTimeout, doc.FailedRetryInterval)
	}
	if !doc.GetMessages || !doc.GetDetails || !doc.CookieBackup || doc.Schedule != "08:00" {
		t.Fatalf("unexpected toggles %+v", doc)
	}
	if doc.Store.Dir != filepath.Dir(path) {
		t.Fatalf("store dir should default to the config dir, got %q", doc.Store.Dir)
	}
	if p := doc.Policy(); p.Threshold != 3 || p.Interval != 2*time.Hour {
		t.Fatalf("unexpected policy %+v", p)
	}
	if err := doc.Validate(adapter.Default()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_OverridesAndDurations(t *testing.T) {
	path := writeConfig(t, `
max_workers: 4
retry_delay: 5
request_timeout: 90s
failed_retry_interval: 30m
get_messages: false
store:
  type: sqlite
  table_prefix: pt
logging:
  level: debug
  format: json
  file: logs/checkin.log
  max_backups: 2
sites:
  alpha:
    adapter: generic
    url: https://alpha.example
    steps:
      - url: /sign
        succeed: ["done$"]
`)
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.MaxWorkers != 4 || doc.RetryDelay != 5*time.Second || doc.RequestTimeout != 90*time.Second {
		t.Fatalf("unexpected values %+v", doc)
	}
	if doc.FailedRetryInterval != 30*time.Minute || doc.GetMessages {
		t.Fatalf("unexpected values %+v", doc)
	}
	if doc.Store.Type != "sqlite" || doc.Store.TablePrefix != "pt" {
		t.Fatalf("unexpected store %+v", doc.Store)
	}
	if doc.Logging.Path != "logs/checkin.log" || doc.Logging.MaxBackups != 2 {
		t.Fatalf("unexpected logging %+v", doc.Logging)
	}
	steps := doc.Sites["alpha"].(map[string]any)["steps"].([]any)
	succeed := steps[0].(map[string]any)["succeed"].([]any)
	if succeed[0] != "done$" {
		t.Fatalf("regex must not be expanded, got %v", succeed[0])
	}
	if err := doc.Validate(adapter.Default()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_ExpandsEnvAndDotEnv(t *testing.T) {
	path := writeConfig(t, `
cookie_cloud:
  url: ${CC_URL}
  uuid: ${CC_UUID}
  password: secret
sites:
  pt.example: ${PT_COOKIE}
`)
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(envFile, []byte("CC_URL=http://cc.local\nCC_UUID=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PT_COOKIE", "uid=42")
	// variables already set win over .env
	t.Setenv("CC_UUID", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("CC_URL") })

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.CookieCloud.URL != "http://cc.local" || doc.CookieCloud.UUID != "from-env" {
		t.Fatalf("unexpected cookie cloud %+v", doc.CookieCloud)
	}
	if !doc.CookieCloud.Enabled() {
		t.Fatal("cookie cloud should be enabled")
	}
	if doc.Sites["pt.example"] != "uid=42" {
		t.Fatalf("unexpected site %v", doc.Sites["pt.example"])
	}
}

func TestValidate_Problems(t *testing.T) {
	doc := Default()
	doc.Schedule = "25:00"
	doc.MaxWorkers = 0
	doc.Transport = "carrier-pigeon"
	doc.Store.Type = "mongo"
	doc.Sites = map[string]any{
		"alpha": map[string]any{"adapter": "generic", "url": "https://alpha.example"},
		"beta":  map[string]any{"use_cookie_cloud": true},
	}
	err := doc.Validate(adapter.Default())
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	for _, want := range []string{"max_workers", "carrier-pigeon", "mongo", "target alpha", "target beta: use_cookie_cloud"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidate_NoSites(t *testing.T) {
	doc := Default()
	if err := doc.Validate(adapter.Default()); err == nil || !strings.Contains(err.Error(), "no sites") {
		t.Fatalf("expected no sites error, got %v", err)
	}
}

func TestLogger_MasksByDefault(t *testing.T) {
	var buf bytes.Buffer
	doc := Default()
	doc.Logging.Format = "json"
	doc.Logger(&buf).Info("login", "password", "hunter2")
	if strings.Contains(buf.String(), "hunter2") {
		t.Fatalf("password leaked: %s", buf.String())
	}

	buf.Reset()
	off := false
	doc.Logging.MaskSensitive = &off
	doc.Logger(&buf).Info("login", "password", "hunter2")
	if !strings.Contains(buf.String(), "hunter2") {
		t.Fatalf("masking should be disabled: %s", buf.String())
	}
}

func TestMasker_CaptchaFieldsAndToggle(t *testing.T) {
	doc := Default()
	doc.Sites = map[string]any{
		"alpha": map[string]any{
			"adapter": "generic",
			"url":     "https://alpha.example",
			"steps": []any{
				map[string]any{"url": "/", "method": "POST", "captcha": map[string]any{"image": `src="(img.php)"`}},
				map[string]any{"url": "/x", "method": "POST", "captcha": map[string]any{"image": `src="(c.png)"`, "field": "Answer"}},
			},
		},
		"beta": "uid=1",
	}

	m := doc.Masker()
	if !m.IsEnabled() {
		t.Fatal("masking should default to enabled")
	}
	for _, key := range []string{"imagestring", "answer"} {
		if got := m.MaskValue(key, "ab12"); got == "ab12" {
			t.Errorf("captcha field %s not masked", key)
		}
	}
	if got := m.MaskString("imagestring=ab12&action=sign"); strings.Contains(got, "ab12") {
		t.Errorf("captcha answer leaked in %q", got)
	}

	off := false
	doc.Logging.MaskSensitive = &off
	if doc.Masker().IsEnabled() {
		t.Fatal("mask_sensitive=false should disable the masker")
	}
}
