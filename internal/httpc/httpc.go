package httpc

import (
	"crypto/tls"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/loykin/checkin/internal/constants"
)

// Httpc builds resty clients shared by transports and credential sources.
type Httpc struct {
	TlsConfig *tls.Config
	Timeout   time.Duration
	UserAgent string
	Proxy     string
}

// New returns a resty.Client configured according to the receiver.
// Defaults: MinVersion TLS1.2 when MinVersion is zero, 60s timeout.
// The client never keeps a cookie jar: session state lives on each task.
func (h *Httpc) New() *resty.Client {
	c := resty.New()
	c.SetCookieJar(nil)

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultRequestTimeout
	}
	c.SetTimeout(timeout)

	if h.UserAgent != "" {
		c.SetHeader("User-Agent", h.UserAgent)
	}
	if h.Proxy != "" {
		c.SetProxy(h.Proxy)
	}

	cfg := h.TlsConfig
	if cfg == nil {
		return c
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	c.SetTLSClientConfig(cfg)
	return c
}
