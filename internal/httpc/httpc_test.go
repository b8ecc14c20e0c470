package httpc

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHttpc_InsecureAllowsSelfSigned(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	strict := (&Httpc{}).New()
	if _, err := strict.R().Get(srv.URL); err == nil {
		t.Fatalf("expected error without insecure TLS")
	}

	insecure := (&Httpc{TlsConfig: &tls.Config{InsecureSkipVerify: true}}).New()
	resp, err := insecure.R().Get(srv.URL)
	if err != nil || resp.StatusCode() != http.StatusOK {
		t.Fatalf("expected 200 with insecure TLS, got %v %v", resp, err)
	}
}

func TestHttpc_DefaultsApplied(t *testing.T) {
	c := (&Httpc{UserAgent: "checkin-test"}).New()
	if c.GetClient().Timeout != 60*time.Second {
		t.Fatalf("expected default 60s timeout, got %v", c.GetClient().Timeout)
	}
	if c.GetClient().Jar != nil {
		t.Fatalf("client must not keep a cookie jar")
	}
	if c.Header.Get("User-Agent") != "checkin-test" {
		t.Fatalf("user agent not applied")
	}
}

func TestHttpc_UserAgentSent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := (&Httpc{UserAgent: "checkin-ua", Timeout: time.Second}).New()
	if _, err := c.R().Get(srv.URL); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if got != "checkin-ua" {
		t.Fatalf("server saw user agent %q", got)
	}
}

func TestHttpc_MinTLSDefault(t *testing.T) {
	cfg := &tls.Config{}
	_ = (&Httpc{TlsConfig: cfg}).New()
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Fatalf("expected TLS1.2 minimum, got %x", cfg.MinVersion)
	}
}
