package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/checkin/internal/captcha"
	"github.com/loykin/checkin/internal/detail"
	"github.com/loykin/checkin/internal/task"
	"github.com/loykin/checkin/internal/transport"
	"github.com/loykin/checkin/internal/workflow"
)

// GenericKey is the registry key of the data-driven adapter.
const GenericKey = "generic"

// PatternConfig is one success signature. A bare string is a regex.
type PatternConfig struct {
	Regex  string `mapstructure:"regex" yaml:"regex"`
	Group  int    `mapstructure:"group" yaml:"group"`
	JSON   string `mapstructure:"json" yaml:"json"`
	Equals string `mapstructure:"equals" yaml:"equals"`
}

// StepConfig is the config form of a workflow step.
type StepConfig struct {
	Name           string            `mapstructure:"name" yaml:"name"`
	URL            string            `mapstructure:"url" yaml:"url"`
	Method         string            `mapstructure:"method" yaml:"method"`
	Form           map[string]string `mapstructure:"form" yaml:"form"`
	Hidden         []string          `mapstructure:"hidden" yaml:"hidden"`
	ResponseURLs   []string          `mapstructure:"response_urls" yaml:"response_urls"`
	Succeed        []PatternConfig   `mapstructure:"succeed" yaml:"succeed"`
	Fail           string            `mapstructure:"fail" yaml:"fail"`
	Auth           string            `mapstructure:"auth" yaml:"auth"`
	Expect         string            `mapstructure:"expect" yaml:"expect"`
	UseLastContent bool              `mapstructure:"use_last_content" yaml:"use_last_content"`
	BaseContent    bool              `mapstructure:"base_content" yaml:"base_content"`
	Captcha        *CaptchaConfig    `mapstructure:"captcha" yaml:"captcha"`
}

// CaptchaConfig makes a POST step answer a CAPTCHA found on the previous page.
// Group 1 of Image must capture the image URL.
type CaptchaConfig struct {
	Image string `mapstructure:"image" yaml:"image"`
	Field string `mapstructure:"field" yaml:"field"`
}

// GenericConfig is the config of the generic adapter.
type GenericConfig struct {
	Login   []StepConfig               `mapstructure:"login"`
	Steps   []StepConfig               `mapstructure:"steps"`
	Details map[string]detail.RawField `mapstructure:"details"`
	// DetailsURL is fetched for details; empty means the snapshot is used.
	DetailsURL string `mapstructure:"details_url"`
}

// DefaultCaptchaField is the NexusPHP form field carrying the CAPTCHA answer.
const DefaultCaptchaField = "imagestring"

// CaptchaFields lists the form fields that carry CAPTCHA answers in the
// generic config of spec. Unparseable specs yield nothing.
func CaptchaFields(spec map[string]any) []string {
	cfg, err := DecodeGeneric(spec)
	if err != nil {
		return nil
	}
	var out []string
	for _, sc := range append(cfg.Login, cfg.Steps...) {
		if sc.Captcha == nil {
			continue
		}
		field := sc.Captcha.Field
		if field == "" {
			field = DefaultCaptchaField
		}
		out = append(out, field)
	}
	return out
}

// Generic builds its workflow entirely from configuration.
type Generic struct {
	login   []workflow.Step
	steps   []workflow.Step
	details detail.Spec
	cfg     GenericConfig
	solver  captcha.Solver
}

// SetSolver installs the solver used by captcha steps.
func (g *Generic) SetSolver(s captcha.Solver) { g.solver = s }

func (g *Generic) Solve(ctx context.Context, image []byte) (string, error) {
	if g.solver == nil {
		return "", errors.New("no captcha solver configured")
	}
	return g.solver.Solve(ctx, image)
}

// patternHook lets a succeed entry be a bare regex string.
func patternHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(PatternConfig{}) || from.Kind() != reflect.String {
		return data, nil
	}
	return PatternConfig{Regex: data.(string)}, nil
}

// DecodeGeneric decodes spec into a GenericConfig.
func DecodeGeneric(spec map[string]any) (GenericConfig, error) {
	var cfg GenericConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook:       patternHook,
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(spec); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// NewGeneric is the Factory of the generic adapter.
func NewGeneric(spec map[string]any) (Adapter, error) {
	cfg, err := DecodeGeneric(spec)
	if err != nil {
		return nil, fmt.Errorf("generic: %w", err)
	}
	if len(cfg.Steps) == 0 {
		return nil, errors.New("generic: no steps configured")
	}
	g := &Generic{cfg: cfg}
	if g.login, err = compileSteps(cfg.Login, g); err != nil {
		return nil, fmt.Errorf("generic login: %w", err)
	}
	if g.steps, err = compileSteps(cfg.Steps, g); err != nil {
		return nil, fmt.Errorf("generic: %w", err)
	}
	if len(cfg.Details) > 0 {
		if g.details, err = detail.Compile(cfg.Details); err != nil {
			return nil, fmt.Errorf("generic: %w", err)
		}
	}
	return g, nil
}

func compileSteps(in []StepConfig, solver captcha.Solver) ([]workflow.Step, error) {
	out := make([]workflow.Step, 0, len(in))
	for i, sc := range in {
		s, err := compileStep(sc, solver)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func compileRegex(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	return regexp.Compile(expr)
}

func compileStep(sc StepConfig, solver captcha.Solver) (workflow.Step, error) {
	s := workflow.Step{
		Name:           sc.Name,
		URL:            sc.URL,
		ResponseURLs:   sc.ResponseURLs,
		UseLastContent: sc.UseLastContent,
		BaseContent:    sc.BaseContent,
	}
	for _, pc := range sc.Succeed {
		if pc.JSON != "" {
			s.Success = append(s.Success, workflow.Pattern{JSONPath: pc.JSON, JSONEquals: pc.Equals})
			continue
		}
		re, err := regexp.Compile(pc.Regex)
		if err != nil {
			return s, err
		}
		s.Success = append(s.Success, workflow.Pattern{Regex: re, Group: pc.Group})
	}
	var err error
	if s.Fail, err = compileRegex(sc.Fail); err != nil {
		return s, err
	}
	if s.Auth, err = compileRegex(sc.Auth); err != nil {
		return s, err
	}
	if sc.Expect != "" {
		st, ok := workflow.ParseState(sc.Expect)
		if !ok {
			return s, fmt.Errorf("unknown expect state %q", sc.Expect)
		}
		s.Expect = st
	}

	switch strings.ToUpper(sc.Method) {
	case "", http.MethodGet:
		if len(sc.Form) > 0 || len(sc.Hidden) > 0 || sc.Captcha != nil {
			return s, errors.New("form data needs method POST")
		}
	case http.MethodPost:
		var form workflow.FormFunc
		if len(sc.Form) > 0 {
			form = workflow.Values(sc.Form)
		}
		if len(sc.Hidden) > 0 {
			form = workflow.HiddenInputs(form, sc.Hidden...)
		}
		if sc.Captcha == nil {
			s.Handler = workflow.Post(form)
			break
		}
		image, err := regexp.Compile(sc.Captcha.Image)
		if err != nil || image.NumSubexp() < 1 {
			return s, fmt.Errorf("captcha image %q needs a capture group", sc.Captcha.Image)
		}
		field := sc.Captcha.Field
		if field == "" {
			field = DefaultCaptchaField
		}
		s.Handler = workflow.CaptchaPost(solver, image, field, form)
	default:
		return s, fmt.Errorf("unsupported method %q", sc.Method)
	}
	return s, nil
}

func (g *Generic) Schema() Schema {
	return Schema{"login": "list", "steps": "list", "details": "map", "details_url": "string"}
}

func (g *Generic) CredentialSteps(*task.Task) []workflow.Step { return g.login }

func (g *Generic) Workflow(*task.Task) ([]workflow.Step, error) { return g.steps, nil }

// FetchDetails applies the configured detail table to the snapshot, or to
// details_url when set.
func (g *Generic) FetchDetails(ctx context.Context, t *task.Task, tr transport.Transport) (map[string]string, error) {
	if len(g.details) == 0 {
		return nil, nil
	}
	content := t.Snapshot
	if g.cfg.DetailsURL != "" {
		var err error
		if content, err = fetchPage(ctx, t, tr, g.cfg.DetailsURL); err != nil {
			return nil, err
		}
	}
	if content == "" {
		return nil, errors.New("no page content for details")
	}
	return detail.Extract(content, g.details)
}

// fetchPage GETs ref relative to the task base URL and returns its text.
func fetchPage(ctx context.Context, t *task.Task, tr transport.Transport, ref string) (string, error) {
	target, err := workflow.Resolve(t.BaseURL, ref)
	if err != nil {
		return "", err
	}
	resp, err := tr.Do(ctx, transport.Request{Method: http.MethodGet, URL: target, Headers: t.Headers, Cookie: t.Credential})
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", target, err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("GET %s: HTTP %d", target, resp.StatusCode)
	}
	return resp.Text()
}
