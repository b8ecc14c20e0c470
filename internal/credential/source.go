// Package credential resolves target credentials from the local credential
// records and from external sources such as CookieCloud.
package credential

import (
	"context"
	"errors"
	"strings"
)

// ErrNoCredential is returned when a source holds nothing for a domain.
var ErrNoCredential = errors.New("credential: none for domain")

// Source is an external credential provider keyed by domain.
type Source interface {
	// Get returns the credential for domain, possibly from a cache.
	Get(ctx context.Context, domain string) (string, error)
	// Refresh bypasses any cache and returns the current credential.
	Refresh(ctx context.Context, domain string) (string, error)
}

// Lookup finds the value for domain in byDomain: an exact match first,
// then the longest entry domain is a subdomain of.
func Lookup(byDomain map[string]string, domain string) (string, bool) {
	domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "."))
	if domain == "" {
		return "", false
	}
	if v, ok := byDomain[domain]; ok {
		return v, true
	}
	best, value := "", ""
	for d, v := range byDomain {
		if strings.HasSuffix(domain, "."+d) && len(d) > len(best) {
			best, value = d, v
		}
	}
	return value, best != ""
}
