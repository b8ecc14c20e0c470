package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/loykin/checkin/internal/common"
	"github.com/tidwall/gjson"
)

// CookieCloud reads browser cookies synced to a CookieCloud server. All
// domains are fetched at once and cached until Refresh.
type CookieCloud struct {
	client   *resty.Client
	url      string
	uuid     string
	password string
	logger   *common.Logger

	mu      sync.Mutex
	cookies map[string]string
}

// NewCookieCloud returns a source for the server at url.
func NewCookieCloud(client *resty.Client, url, uuid, password string, logger *common.Logger) *CookieCloud {
	if logger == nil {
		logger = common.Discard()
	}
	return &CookieCloud{
		client:   client,
		url:      strings.TrimRight(url, "/"),
		uuid:     uuid,
		password: password,
		logger:   logger.WithComponent("cookiecloud"),
	}
}

func (c *CookieCloud) Get(ctx context.Context, domain string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cookies == nil {
		if err := c.fetch(ctx); err != nil {
			return "", err
		}
	}
	return c.lookup(domain)
}

func (c *CookieCloud) Refresh(ctx context.Context, domain string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fetch(ctx); err != nil {
		return "", err
	}
	return c.lookup(domain)
}

func (c *CookieCloud) lookup(domain string) (string, error) {
	v, ok := Lookup(c.cookies, domain)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrNoCredential, domain)
	}
	return v, nil
}

func (c *CookieCloud) fetch(ctx context.Context) error {
	if c.url == "" || c.uuid == "" {
		return errors.New("cookiecloud: url and uuid are required")
	}
	resp, err := c.client.R().SetContext(ctx).Get(c.url + "/get/" + c.uuid)
	if err != nil {
		return fmt.Errorf("cookiecloud: fetch: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("cookiecloud: fetch: HTTP %d", resp.StatusCode())
	}
	encrypted := gjson.GetBytes(resp.Body(), "encrypted").String()
	if encrypted == "" {
		return errors.New("cookiecloud: response carries no encrypted payload")
	}
	plain, err := decryptSalted(cookieCloudKey(c.uuid, c.password), encrypted)
	if err != nil {
		return fmt.Errorf("cookiecloud: decrypt: %w", err)
	}
	c.cookies = parseCookieData(plain)
	c.logger.Info("fetched cookies", "domains", len(c.cookies))
	return nil
}

// parseCookieData turns the decrypted document into domain -> cookie
// header. Domains holding only cf_clearance are dropped.
func parseCookieData(doc []byte) map[string]string {
	out := map[string]string{}
	gjson.GetBytes(doc, "cookie_data").ForEach(func(key, value gjson.Result) bool {
		items := value.Array()
		if len(items) == 0 {
			return true
		}
		onlyClearance := true
		pairs := make([]string, 0, len(items))
		for _, item := range items {
			name, val := item.Get("name").String(), item.Get("value").String()
			if name != "cf_clearance" {
				onlyClearance = false
			}
			if name != "" && val != "" {
				pairs = append(pairs, name+"="+val)
			}
		}
		if onlyClearance {
			return true
		}
		domain := strings.ToLower(strings.TrimPrefix(key.String(), "."))
		if prev, ok := out[domain]; ok && prev != "" {
			pairs = append([]string{prev}, pairs...)
		}
		out[domain] = strings.Join(pairs, "; ")
		return true
	})
	return out
}
