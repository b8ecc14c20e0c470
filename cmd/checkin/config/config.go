package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/loykin/checkin/internal/adapter"
	"github.com/loykin/checkin/internal/common"
	"github.com/loykin/checkin/internal/constants"
	"github.com/loykin/checkin/internal/ledger"
	"github.com/loykin/checkin/internal/scheduler"
	"github.com/loykin/checkin/internal/store"
	"github.com/loykin/checkin/internal/util"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation problem of a config document.
var ErrInvalid = errors.New("invalid config")

type CookieCloudConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	UUID     string `mapstructure:"uuid" yaml:"uuid"`
	Password string `mapstructure:"password" yaml:"password"`
}

// Enabled reports whether all three CookieCloud settings are present.
func (c CookieCloudConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != "" && c.UUID != "" && c.Password != ""
}

type FlareSolverrConfig struct {
	URL        string        `mapstructure:"url" yaml:"url"`
	MaxTimeout time.Duration `mapstructure:"max_timeout" yaml:"max_timeout"`
}

// CaptchaConfig points at an OCR endpoint that answers image uploads with JSON.
type CaptchaConfig struct {
	URL        string `mapstructure:"url" yaml:"url"`
	Field      string `mapstructure:"field" yaml:"field"`
	ResultPath string `mapstructure:"result_path" yaml:"result_path"`
}

type LoggingConfig struct {
	Level              string `mapstructure:"level" yaml:"level"`                   // error, warn, info, debug
	Format             string `mapstructure:"format" yaml:"format"`                 // text, json, color
	MaskSensitive      *bool  `mapstructure:"mask_sensitive" yaml:"mask_sensitive"` // enable/disable sensitive data masking
	common.FileOptions `mapstructure:",squash" yaml:",inline"`
}

type ServerConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

type ConfigDoc struct {
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
	Proxy          string        `mapstructure:"proxy" yaml:"proxy"`
	Insecure       bool          `mapstructure:"insecure" yaml:"insecure"`
	Transport      string        `mapstructure:"transport" yaml:"transport"`
	MaxWorkers     int           `mapstructure:"max_workers" yaml:"max_workers"`
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// MaxFailedAttempts is the ledger failure count from which a target backs off.
	MaxFailedAttempts   int           `mapstructure:"max_failed_attempts" yaml:"max_failed_attempts"`
	FailedRetryInterval time.Duration `mapstructure:"failed_retry_interval" yaml:"failed_retry_interval"`
	RetentionDays       int           `mapstructure:"retention_days" yaml:"retention_days"`
	Schedule            string        `mapstructure:"schedule" yaml:"schedule"`
	GetMessages         bool          `mapstructure:"get_messages" yaml:"get_messages"`
	GetDetails          bool          `mapstructure:"get_details" yaml:"get_details"`
	CookieBackup        bool          `mapstructure:"cookie_backup" yaml:"cookie_backup"`

	Store        store.Config       `mapstructure:"store" yaml:"store"`
	CookieCloud  CookieCloudConfig  `mapstructure:"cookie_cloud" yaml:"cookie_cloud"`
	FlareSolverr FlareSolverrConfig `mapstructure:"flaresolverr" yaml:"flaresolverr"`
	Captcha      CaptchaConfig      `mapstructure:"captcha" yaml:"captcha"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`

	// Sites maps target names to a cookie string or an adapter config object.
	Sites map[string]any `mapstructure:"sites" yaml:"sites"`

	// Dir is the directory of the loaded file.
	Dir string `mapstructure:"-" yaml:"-"`
}

// Default returns a document holding every default value.
func Default() ConfigDoc {
	return ConfigDoc{
		UserAgent:           constants.DefaultUserAgent,
		Transport:           constants.TransportDirect,
		MaxWorkers:          constants.DefaultMaxWorkers,
		MaxAttempts:         constants.DefaultMaxAttempts,
		RequestTimeout:      constants.DefaultRequestTimeout,
		MaxFailedAttempts:   constants.DefaultFailureThreshold,
		FailedRetryInterval: constants.DefaultRetryInterval,
		RetentionDays:       constants.DefaultRetentionDays,
		Schedule:            constants.DefaultSchedule,
		GetMessages:         true,
		GetDetails:          true,
		CookieBackup:        true,
		FlareSolverr:        FlareSolverrConfig{MaxTimeout: constants.DefaultFlareSolverrTimeout},
		Server:              ServerConfig{Addr: ":8080"},
		Sites:               map[string]any{},
		Dir:                 ".",
	}
}

// Load reads path, expands ${VAR} references and decodes it over the defaults.
// A .env file next to the config is loaded first; it never overrides
// variables already set in the environment.
func Load(path string) (ConfigDoc, error) {
	doc := Default()
	clean := filepath.Clean(path)
	// Ensure path points to a regular file to avoid opening directories/special files
	if info, err := os.Stat(clean); err != nil || !info.Mode().IsRegular() {
		if err != nil {
			return doc, err
		}
		return doc, fmt.Errorf("not a regular file: %s", clean)
	}
	doc.Dir = filepath.Dir(clean)

	if envFile := filepath.Join(doc.Dir, ".env"); fileExists(envFile) {
		if err := godotenv.Load(envFile); err != nil {
			return doc, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	// #nosec G304 -- config path is provided intentionally by the user; cleaned and validated above
	f, err := os.Open(clean)
	if err != nil {
		return doc, err
	}
	defer func() { _ = f.Close() }()
	if err := doc.Decode(f); err != nil {
		return doc, fmt.Errorf("%s: %w", clean, err)
	}
	if doc.Store.Dir == "" {
		doc.Store.Dir = doc.Dir
	}
	return doc, nil
}

// Decode reads YAML from r into c. Keys absent from the document keep
// their current values.
func (c *ConfigDoc) Decode(r io.Reader) error {
	var raw map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	raw = expand(raw)

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// patternKeys hold regexes inside a site entry and are never expanded.
var patternKeys = map[string]bool{"steps": true, "login": true, "details": true}

func expand(raw map[string]any) map[string]any {
	sites, _ := raw["sites"].(map[string]any)
	delete(raw, "sites")
	out, _ := util.ExpandAny(raw, nil).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	if sites == nil {
		return out
	}
	expanded := make(map[string]any, len(sites))
	for name, site := range sites {
		spec, ok := site.(map[string]any)
		if !ok {
			expanded[name] = util.ExpandAny(site, nil)
			continue
		}
		m := make(map[string]any, len(spec))
		for k, v := range spec {
			if patternKeys[k] {
				m[k] = v
				continue
			}
			m[k] = util.ExpandAny(v, nil)
		}
		expanded[name] = m
	}
	out["sites"] = expanded
	return out
}

// secondsToDurationHook reads bare numbers as seconds.
func secondsToDurationHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Policy returns the ledger skip policy.
func (c *ConfigDoc) Policy() ledger.Policy {
	return ledger.Policy{Threshold: c.MaxFailedAttempts, Interval: c.FailedRetryInterval}
}

// SiteNames returns the configured targets in order.
func (c *ConfigDoc) SiteNames() []string {
	names := make([]string, 0, len(c.Sites))
	for n := range c.Sites {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks the document and every site against reg. The returned
// error wraps ErrInvalid and lists all problems.
func (c *ConfigDoc) Validate(reg *adapter.Registry) error {
	var problems []string
	if _, _, err := scheduler.ParseSchedule(c.Schedule); err != nil {
		problems = append(problems, err.Error())
	}
	if c.MaxWorkers < 1 {
		problems = append(problems, fmt.Sprintf("max_workers must be at least 1, got %d", c.MaxWorkers))
	}
	if c.MaxAttempts < 1 {
		problems = append(problems, fmt.Sprintf("max_attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if c.RetryDelay < 0 || c.RequestTimeout <= 0 {
		problems = append(problems, "retry_delay and request_timeout must not be negative")
	}
	switch util.TrimAndLower(c.Store.Type) {
	case "", "file", "json", "sqlite", "sqlite3", "postgres", "postgresql", "pg":
	default:
		problems = append(problems, fmt.Sprintf("unknown store type %q", c.Store.Type))
	}
	switch util.TrimAndLower(c.Logging.Format) {
	case "", common.FormatText, common.FormatJSON, common.FormatColor:
	default:
		problems = append(problems, fmt.Sprintf("invalid logging format: %s (valid: text, json, color)", c.Logging.Format))
	}
	if err := checkTransport(c.Transport); err != nil {
		problems = append(problems, err.Error())
	}
	if len(c.Sites) == 0 {
		problems = append(problems, "no sites configured")
	}
	for _, name := range c.SiteNames() {
		problems = append(problems, reg.Validate(name, c.Sites[name])...)
		spec := adapter.Spec(c.Sites[name])
		if tr, _ := spec["transport"].(string); tr != "" {
			if err := checkTransport(tr); err != nil {
				problems = append(problems, fmt.Sprintf("target %s: %v", name, err))
			}
		}
		if cc, _ := spec["use_cookie_cloud"].(bool); cc && !c.CookieCloud.Enabled() {
			problems = append(problems, fmt.Sprintf("target %s: use_cookie_cloud needs cookie_cloud url, uuid and password", name))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}

func checkTransport(t string) error {
	switch util.TrimAndLower(t) {
	case "", constants.TransportDirect, constants.TransportFlareSolverr:
		return nil
	default:
		return fmt.Errorf("unknown transport %q", t)
	}
}

// Masker returns the log masker: the default patterns plus the CAPTCHA
// answer fields of every site, switched by logging.mask_sensitive.
func (c *ConfigDoc) Masker() *common.Masker {
	m := common.NewMasker()
	m.SetEnabled(c.Logging.MaskSensitive == nil || *c.Logging.MaskSensitive)

	seen := map[string]bool{}
	var keys []string
	for _, name := range c.SiteNames() {
		for _, f := range adapter.CaptchaFields(adapter.Spec(c.Sites[name])) {
			if f = strings.ToLower(f); !seen[f] {
				seen[f] = true
				keys = append(keys, f)
			}
		}
	}
	if len(keys) > 0 {
		m.AddPattern(common.SensitivePattern{Name: "captcha", Keys: keys})
	}
	return m
}

// Logger builds the logger described by the logging section.
func (c *ConfigDoc) Logger(out io.Writer) *common.Logger {
	opts := common.Options{
		Level:  common.ParseLevel(c.Logging.Level),
		Format: util.TrimAndLower(c.Logging.Format),
		Output: out,
		Masker: c.Masker(),
	}
	if c.Logging.Path != "" {
		file := c.Logging.FileOptions
		if !filepath.IsAbs(file.Path) {
			file.Path = filepath.Join(c.Dir, file.Path)
		}
		opts.File = &file
	}
	return common.New(opts)
}
