// Package transport performs the network actions of workflow steps. Step
// handlers only see the Transport interface; whether a request goes out
// directly or through a browser-automation proxy is a per-target policy.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/loykin/checkin/internal/constants"
	"golang.org/x/net/html/charset"
)

// ErrUnavailable is returned by Set.For when a policy has no backing transport.
var ErrUnavailable = errors.New("transport: not configured")

// Request is a single outbound call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	// Cookie is sent verbatim as the Cookie header.
	Cookie string
	Form   url.Values
}

// Response is the transport-neutral result of a call.
type Response struct {
	StatusCode int
	// URL is the final URL after redirects.
	URL     string
	Header  http.Header
	Body    []byte
	Cookies []*http.Cookie
}

// Text decodes Body using the charset declared by the response
// (Content-Type header or <meta> tag), defaulting to UTF-8.
func (r *Response) Text() (string, error) {
	if r == nil {
		return "", errors.New("transport: nil response")
	}
	if len(r.Body) == 0 {
		return "", nil
	}
	ct := ""
	if r.Header != nil {
		ct = r.Header.Get("Content-Type")
	}
	reader, err := charset.NewReader(bytes.NewReader(r.Body), ct)
	if err != nil {
		return string(r.Body), nil
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("decode response body: %w", err)
	}
	return string(decoded), nil
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport performs one request.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Set selects a Transport by policy name.
type Set struct {
	Direct       Transport
	FlareSolverr Transport
}

// For returns the transport for policy. An empty policy means direct.
func (s Set) For(policy string) (Transport, error) {
	switch policy {
	case "", constants.TransportDirect:
		if s.Direct == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, constants.TransportDirect)
		}
		return s.Direct, nil
	case constants.TransportFlareSolverr:
		if s.FlareSolverr == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, constants.TransportFlareSolverr)
		}
		return s.FlareSolverr, nil
	default:
		return nil, fmt.Errorf("transport: unknown policy %q", policy)
	}
}
