package adapter

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/checkin/internal/captcha"
	"github.com/loykin/checkin/internal/common"
	"github.com/loykin/checkin/internal/constants"
	"github.com/loykin/checkin/internal/task"
)

// baseConfig holds the keys every adapter understands.
type baseConfig struct {
	Adapter        string            `mapstructure:"adapter"`
	URL            string            `mapstructure:"url"`
	Cookie         any               `mapstructure:"cookie"`
	UseCookieCloud bool              `mapstructure:"use_cookie_cloud"`
	Transport      string            `mapstructure:"transport"`
	Headers        map[string]string `mapstructure:"headers"`
	Prefix         string            `mapstructure:"prefix"`
}

var baseSchema = Schema{
	"adapter":          "string",
	"url":              "string",
	"cookie":           "string|map",
	"use_cookie_cloud": "bool",
	"transport":        "direct|flaresolverr",
	"headers":          "map",
	"prefix":           "string",
}

// Options are the global defaults applied while building contexts.
type Options struct {
	UserAgent string
	Transport string
	Logger    *common.Logger
	// Captcha is handed to adapters that solve CAPTCHAs.
	Captcha captcha.Solver
}

// Spec normalises a raw site entry. A scalar is the target's cookie.
func Spec(raw any) map[string]any {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}
	case string:
		return map[string]any{"cookie": v}
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = val
		}
		return out
	default:
		return map[string]any{"cookie": fmt.Sprint(v)}
	}
}

// Key returns the adapter key for target name: the explicit adapter key,
// else the name itself when registered, else nexusphp.
func (r *Registry) Key(name string, spec map[string]any) string {
	if k, ok := spec["adapter"].(string); ok && strings.TrimSpace(k) != "" {
		return normalizeKey(k)
	}
	if r.Has(name) {
		return normalizeKey(name)
	}
	return NexusPHPKey
}

// Build creates the Task Context and adapter of one target.
func (r *Registry) Build(name string, raw any, opts Options) (*task.Task, Adapter, error) {
	spec := Spec(raw)
	key := r.Key(name, spec)
	a, err := r.New(key, spec)
	if err != nil {
		return nil, nil, fmt.Errorf("target %s: %w", name, err)
	}

	var base baseConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &base,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := dec.Decode(spec); err != nil {
		return nil, nil, fmt.Errorf("target %s: %w", name, err)
	}

	t := task.New(name, key, opts.Logger)
	t.Config = spec
	t.BaseURL = base.URL
	if t.BaseURL == "" {
		t.BaseURL = "https://" + name
	}
	u, err := url.Parse(t.BaseURL)
	if err != nil || u.Host == "" {
		return nil, nil, fmt.Errorf("target %s: invalid url %q", name, t.BaseURL)
	}
	t.Domain = u.Hostname()
	t.Credential = formatCookie(base.Cookie)
	t.UseCookieCloud = base.UseCookieCloud
	t.Transport = base.Transport
	if t.Transport == "" {
		t.Transport = opts.Transport
	}
	if base.Prefix != "" {
		t.Prefix = base.Prefix
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = constants.DefaultUserAgent
	}
	t.Headers["User-Agent"] = ua
	t.Headers["Referer"] = t.BaseURL
	for k, v := range base.Headers {
		t.Headers[k] = v
	}

	if cu, ok := a.(CaptchaUser); ok && opts.Captcha != nil {
		cu.SetSolver(opts.Captcha)
	}
	if cb, ok := a.(ContextBuilder); ok {
		if err := cb.BuildContext(t, spec); err != nil {
			return nil, nil, fmt.Errorf("target %s: %w", name, err)
		}
	}
	return t, a, nil
}

// Validate returns the problems found in a raw site entry.
func (r *Registry) Validate(name string, raw any) []string {
	spec := Spec(raw)
	t, a, err := r.Build(name, spec, Options{})
	if err != nil {
		return []string{err.Error()}
	}
	var problems []string
	if sb, ok := a.(SchemaBuilder); ok {
		schema := sb.Schema()
		for k := range spec {
			if _, ok := baseSchema[k]; ok {
				continue
			}
			if _, ok := schema[k]; !ok {
				problems = append(problems, fmt.Sprintf("target %s: unknown key %q", name, k))
			}
		}
	}
	if _, err := Workflow(a, t); err != nil {
		problems = append(problems, fmt.Sprintf("target %s: %v", name, err))
	}
	sort.Strings(problems)
	return problems
}

func formatCookie(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(c)
	case map[string]any:
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, c[k]))
		}
		return strings.Join(parts, "; ")
	default:
		return strings.TrimSpace(fmt.Sprint(c))
	}
}
