package workflow

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"

	"github.com/loykin/checkin/internal/captcha"
	"github.com/loykin/checkin/internal/task"
	"github.com/loykin/checkin/internal/transport"
)

// ErrBuild marks a handler that could not assemble its request. It is a
// page-structure problem, not a network one.
var ErrBuild = errors.New("cannot build request")

// Call is what a handler receives for one step.
type Call struct {
	Task      *task.Task
	URL       string
	Last      string
	Transport transport.Transport
}

// Request returns a transport request carrying the task headers and credential.
func (c Call) Request(method, target string, form url.Values) transport.Request {
	return transport.Request{
		Method:  method,
		URL:     target,
		Headers: c.Task.Headers,
		Cookie:  c.Task.Credential,
		Form:    form,
	}
}

// Handler performs the network action of a step.
type Handler func(ctx context.Context, c Call) (*transport.Response, error)

// Get fetches the step URL.
func Get(ctx context.Context, c Call) (*transport.Response, error) {
	return c.Transport.Do(ctx, c.Request(http.MethodGet, c.URL, nil))
}

// FormFunc builds form data, usually from the previous page.
type FormFunc func(t *task.Task, last string) (url.Values, error)

// Values returns a FormFunc yielding a copy of fixed values.
func Values(m map[string]string) FormFunc {
	return func(*task.Task, string) (url.Values, error) {
		v := url.Values{}
		for k, val := range m {
			v.Set(k, val)
		}
		return v, nil
	}
}

// HiddenInputs adds the named hidden <input> values found in the previous page.
func HiddenInputs(base FormFunc, names ...string) FormFunc {
	return func(t *task.Task, last string) (url.Values, error) {
		v := url.Values{}
		if base != nil {
			b, err := base(t, last)
			if err != nil {
				return nil, err
			}
			v = b
		}
		for _, name := range names {
			val, ok := InputValue(last, name)
			if !ok {
				return nil, fmt.Errorf("%w: input %q not found", ErrBuild, name)
			}
			v.Set(name, val)
		}
		return v, nil
	}
}

var (
	inputTagRe   = regexp.MustCompile(`(?is)<input\b[^>]*>`)
	inputNameRe  = regexp.MustCompile(`(?i)\bname\s*=\s*["']([^"']*)["']`)
	inputValueRe = regexp.MustCompile(`(?i)\bvalue\s*=\s*["']([^"']*)["']`)
)

// InputValue returns the value attribute of the <input> named name.
func InputValue(content, name string) (string, bool) {
	for _, tag := range inputTagRe.FindAllString(content, -1) {
		n := inputNameRe.FindStringSubmatch(tag)
		if n == nil || n[1] != name {
			continue
		}
		if v := inputValueRe.FindStringSubmatch(tag); v != nil {
			return html.UnescapeString(v[1]), true
		}
		return "", true
	}
	return "", false
}

// Post submits the form built by form to the step URL.
func Post(form FormFunc) Handler {
	return func(ctx context.Context, c Call) (*transport.Response, error) {
		values := url.Values{}
		if form != nil {
			v, err := form(c.Task, c.Last)
			if err != nil {
				return nil, err
			}
			values = v
		}
		return c.Transport.Do(ctx, c.Request(http.MethodPost, c.URL, values))
	}
}

// CaptchaPost locates the CAPTCHA image in the previous page via image
// (group 1 holds its URL), solves it and posts the answer in field.
func CaptchaPost(solver captcha.Solver, image *regexp.Regexp, field string, form FormFunc) Handler {
	return func(ctx context.Context, c Call) (*transport.Response, error) {
		m := image.FindStringSubmatch(c.Last)
		if len(m) < 2 {
			return nil, fmt.Errorf("%w: captcha image not found", ErrBuild)
		}
		imgURL, err := Resolve(c.URL, html.UnescapeString(m[1]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBuild, err)
		}
		img, err := c.Transport.Do(ctx, c.Request(http.MethodGet, imgURL, nil))
		if err != nil {
			return nil, err
		}
		text, err := solver.Solve(ctx, img.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBuild, err)
		}
		values := url.Values{}
		if form != nil {
			if values, err = form(c.Task, c.Last); err != nil {
				return nil, err
			}
		}
		values.Set(field, text)
		return c.Transport.Do(ctx, c.Request(http.MethodPost, c.URL, values))
	}
}

// Resolve resolves ref against base.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
