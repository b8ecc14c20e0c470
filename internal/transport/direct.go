package transport

import (
	"context"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// Direct sends requests straight to the target with resty.
type Direct struct {
	client *resty.Client
}

// NewDirect wraps a configured resty client.
func NewDirect(client *resty.Client) *Direct {
	return &Direct{client: client}
}

// Do executes req. Non-2xx responses are returned, not turned into errors.
func (d *Direct) Do(ctx context.Context, req Request) (*Response, error) {
	r := d.client.R().SetContext(ctx)
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if req.Cookie != "" {
		r.SetHeader("Cookie", req.Cookie)
	}
	if len(req.Form) > 0 {
		r.SetFormDataFromValues(req.Form)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	resp, err := r.Execute(method, req.URL)
	if err != nil {
		return nil, err
	}

	final := req.URL
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		final = raw.Request.URL.String()
	}
	return &Response{
		StatusCode: resp.StatusCode(),
		URL:        final,
		Header:     resp.Header(),
		Body:       resp.Body(),
		Cookies:    resp.Cookies(),
	}, nil
}
