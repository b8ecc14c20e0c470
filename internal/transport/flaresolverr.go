package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/loykin/checkin/internal/constants"
	"github.com/loykin/checkin/internal/task"
	"github.com/tidwall/gjson"
)

// FlareSolverr routes requests through a FlareSolverr instance so that
// anti-bot challenges are solved by a real browser.
type FlareSolverr struct {
	client     *resty.Client
	endpoint   string
	maxTimeout time.Duration
	session    string
}

// NewFlareSolverr returns a transport posting to <server>/v1.
func NewFlareSolverr(client *resty.Client, server string, maxTimeout time.Duration) *FlareSolverr {
	if maxTimeout <= 0 {
		maxTimeout = constants.DefaultFlareSolverrTimeout
	}
	return &FlareSolverr{
		client:     client,
		endpoint:   strings.TrimRight(server, "/") + "/v1",
		maxTimeout: maxTimeout,
	}
}

// Session returns the active browser session id, if any.
func (f *FlareSolverr) Session() string { return f.session }

// CreateSession opens a persistent browser session reused by later requests.
func (f *FlareSolverr) CreateSession(ctx context.Context) (string, error) {
	body, err := f.call(ctx, map[string]any{"cmd": "sessions.create"})
	if err != nil {
		return "", err
	}
	f.session = gjson.GetBytes(body, "session").String()
	return f.session, nil
}

// DestroySession closes the session opened by CreateSession.
func (f *FlareSolverr) DestroySession(ctx context.Context) error {
	if f.session == "" {
		return nil
	}
	_, err := f.call(ctx, map[string]any{"cmd": "sessions.destroy", "session": f.session})
	f.session = ""
	return err
}

// Do performs req inside the browser. Only GET and form POST are supported.
func (f *FlareSolverr) Do(ctx context.Context, req Request) (*Response, error) {
	payload := map[string]any{
		"cmd":        "request.get",
		"url":        req.URL,
		"maxTimeout": f.maxTimeout.Milliseconds(),
	}
	switch strings.ToUpper(req.Method) {
	case "", http.MethodGet:
	case http.MethodPost:
		payload["cmd"] = "request.post"
		payload["postData"] = req.Form.Encode()
	default:
		return nil, fmt.Errorf("flaresolverr: unsupported method %s", req.Method)
	}
	if f.session != "" {
		payload["session"] = f.session
	}
	if cookies := task.ParseCookies(req.Cookie); len(cookies) > 0 {
		list := make([]map[string]string, 0, len(cookies))
		for _, c := range cookies {
			list = append(list, map[string]string{"name": c.Name, "value": c.Value})
		}
		payload["cookies"] = list
	}

	body, err := f.call(ctx, payload)
	if err != nil {
		return nil, err
	}

	solution := gjson.GetBytes(body, "solution")
	out := &Response{
		StatusCode: int(solution.Get("status").Int()),
		URL:        solution.Get("url").String(),
		Header:     http.Header{},
		Body:       []byte(solution.Get("response").String()),
	}
	solution.Get("headers").ForEach(func(k, v gjson.Result) bool {
		out.Header.Set(k.String(), v.String())
		return true
	})
	// the browser already decoded the page
	out.Header.Set("Content-Type", "text/html; charset=utf-8")
	solution.Get("cookies").ForEach(func(_, c gjson.Result) bool {
		out.Cookies = append(out.Cookies, &http.Cookie{
			Name:  c.Get("name").String(),
			Value: c.Get("value").String(),
		})
		return true
	})
	if out.URL == "" {
		out.URL = req.URL
	}
	return out, nil
}

func (f *FlareSolverr) call(ctx context.Context, payload map[string]any) ([]byte, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(f.endpoint)
	if err != nil {
		return nil, fmt.Errorf("flaresolverr: %w", err)
	}
	body := resp.Body()
	if status := gjson.GetBytes(body, "status").String(); status != "ok" {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = fmt.Sprintf("http %d", resp.StatusCode())
		}
		return nil, errors.New("flaresolverr: " + msg)
	}
	return body, nil
}
