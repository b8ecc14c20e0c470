// Package adapter turns per-target configuration into Task Contexts and
// workflows. Adapters implement only the capabilities they need; callers
// dispatch on the presence of a capability.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/loykin/checkin/internal/captcha"
	"github.com/loykin/checkin/internal/task"
	"github.com/loykin/checkin/internal/transport"
	"github.com/loykin/checkin/internal/workflow"
)

// ErrUnknownAdapter is returned for an unregistered adapter key.
var ErrUnknownAdapter = errors.New("adapter: unknown adapter")

// Adapter is any value implementing one or more capabilities below.
type Adapter any

// Schema maps accepted config keys to a short type description.
type Schema map[string]string

// SchemaBuilder describes the configuration an adapter accepts.
type SchemaBuilder interface {
	Schema() Schema
}

// ContextBuilder seeds adapter specific fields of a Task Context.
type ContextBuilder interface {
	BuildContext(t *task.Task, spec map[string]any) error
}

// CredentialBuilder returns steps that acquire a credential when none is held.
type CredentialBuilder interface {
	CredentialSteps(t *task.Task) []workflow.Step
}

// WorkflowBuilder returns the check-in action steps.
type WorkflowBuilder interface {
	Workflow(t *task.Task) ([]workflow.Step, error)
}

// MessageFetcher reads unread site messages after a successful check-in.
type MessageFetcher interface {
	FetchMessages(ctx context.Context, t *task.Task, tr transport.Transport) (string, error)
}

// DetailFetcher reads user statistics after a successful check-in.
type DetailFetcher interface {
	FetchDetails(ctx context.Context, t *task.Task, tr transport.Transport) (map[string]string, error)
}

// CaptchaUser accepts the solver configured for the run.
type CaptchaUser interface {
	SetSolver(s captcha.Solver)
}

// Factory builds an Adapter from the target's config blob.
type Factory func(spec map[string]any) (Adapter, error)

// Registry maps normalized adapter keys to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Default returns a registry holding the built-in adapters.
func Default() *Registry {
	r := NewRegistry()
	r.Register(GenericKey, NewGeneric)
	r.Register(NexusPHPKey, NewNexusPHP)
	return r
}

// normalizeKey lower-cases and trims adapter keys.
func normalizeKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Register adds f under key. Empty keys and nil factories are ignored.
func (r *Registry) Register(key string, f Factory) {
	key = normalizeKey(key)
	if key == "" || f == nil {
		return
	}
	r.factories[key] = f
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	_, ok := r.factories[normalizeKey(key)]
	return ok
}

// Keys returns the registered keys sorted.
func (r *Registry) Keys() []string {
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New builds the adapter registered under key.
func (r *Registry) New(key string, spec map[string]any) (Adapter, error) {
	f, ok := r.factories[normalizeKey(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAdapter, key)
	}
	return f(spec)
}

// Workflow assembles the full workflow of t: credential steps when t holds
// no credential, then the action steps.
func Workflow(a Adapter, t *task.Task) (workflow.Workflow, error) {
	var acquire, action []workflow.Step
	if cb, ok := a.(CredentialBuilder); ok {
		acquire = cb.CredentialSteps(t)
	}
	if wb, ok := a.(WorkflowBuilder); ok {
		steps, err := wb.Workflow(t)
		if err != nil {
			return nil, err
		}
		action = steps
	}
	return workflow.Assemble(t.Credential, acquire, action), nil
}
