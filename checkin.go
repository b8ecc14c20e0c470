// Package checkin runs authenticated daily check-ins against a set of sites
// and records each day's outcome in a ledger.
//
// Most users run the cmd/checkin binary. Open exposes the same engine to
// programs that want to embed it:
//
//	e, err := checkin.Open(checkin.Options{
//		Store: checkin.StoreConfig{Type: "sqlite", Dir: "./data"},
//		Sites: map[string]any{"pt.example": "uid=1; pass=abc"},
//	})
//	if err != nil { ... }
//	defer e.Close()
//	report, err := e.Run(ctx, checkin.RunOptions{})
package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/checkin/internal/adapter"
	icheckin "github.com/loykin/checkin/internal/checkin"
	"github.com/loykin/checkin/internal/common"
	"github.com/loykin/checkin/internal/credential"
	"github.com/loykin/checkin/internal/httpc"
	"github.com/loykin/checkin/internal/ledger"
	"github.com/loykin/checkin/internal/scheduler"
	"github.com/loykin/checkin/internal/store"
	"github.com/loykin/checkin/internal/task"
	"github.com/loykin/checkin/internal/transport"
	"github.com/loykin/checkin/internal/workflow"
	"github.com/loykin/checkin/pkg/status"
)

// Re-export commonly used types for public API

type (
	Report     = scheduler.Report
	Entry      = scheduler.Entry
	RunOptions = scheduler.Options
	Summary    = status.Info

	Adapter        = adapter.Adapter
	AdapterFactory = adapter.Factory
	Task           = task.Task
	Step           = workflow.Step
	Workflow       = workflow.Workflow

	StoreConfig = store.Config
	Policy      = ledger.Policy
	Logger      = common.Logger
	// CredentialSource supplies fresh credentials when a site rejects the held one.
	CredentialSource = credential.Source
)

// Built-in adapter keys.
const (
	AdapterGeneric  = adapter.GenericKey
	AdapterNexusPHP = adapter.NexusPHPKey
)

// NewLogger returns a masked text logger at level (debug, info, warn, error).
func NewLogger(level string) *Logger { return common.NewLogger(common.ParseLevel(level)) }

// NewJSONLogger is NewLogger with JSON output.
func NewJSONLogger(level string) *Logger { return common.NewJSONLogger(common.ParseLevel(level)) }

// Options configures Open. Zero values take the command-line defaults.
type Options struct {
	Store StoreConfig
	// Sites maps target names to a cookie string or an adapter config object.
	Sites          map[string]any
	MaxWorkers     int
	MaxAttempts    int
	RequestTimeout time.Duration
	// Policy is the failure backoff; nil uses three failures and two hours.
	Policy      *Policy
	UserAgent   string
	Source      CredentialSource
	GetMessages bool
	GetDetails  bool
	// Adapters are registered next to the built-in ones.
	Adapters map[string]AdapterFactory
	Logger   *Logger
}

// Engine runs check-in cycles over the configured sites.
type Engine struct {
	scheduler *scheduler.Scheduler
	ledger    *ledger.Ledger
	backend   store.Connector
}

// Open validates every site, opens the store and wires the engine.
func Open(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = common.Discard()
	}
	reg := adapter.Default()
	for key, f := range opts.Adapters {
		reg.Register(key, f)
	}
	for name, raw := range opts.Sites {
		if problems := reg.Validate(name, raw); len(problems) > 0 {
			return nil, fmt.Errorf("site %s: %s", name, problems[0])
		}
	}

	backend, err := store.Open(opts.Store, nil, logger)
	if err != nil {
		return nil, err
	}
	client := (&httpc.Httpc{Timeout: opts.RequestTimeout, UserAgent: opts.UserAgent}).New()
	policy := ledger.DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	l := ledger.New(backend, logger)
	return &Engine{
		ledger:  l,
		backend: backend,
		scheduler: &scheduler.Scheduler{
			Registry: reg,
			Ledger:   l,
			Coordinator: &icheckin.Coordinator{
				Executor: &icheckin.Executor{
					Transports:  transport.Set{Direct: transport.NewDirect(client)},
					Timeout:     opts.RequestTimeout,
					GetMessages: opts.GetMessages,
					GetDetails:  opts.GetDetails,
				},
				Credentials: credential.NewStore(backend),
				Source:      opts.Source,
				MaxAttempts: opts.MaxAttempts,
				Backup:      true,
			},
			Sites:        opts.Sites,
			BuildOptions: adapter.Options{UserAgent: opts.UserAgent, Logger: logger},
			MaxWorkers:   opts.MaxWorkers,
			Policy:       policy,
			Logger:       logger,
		},
	}, nil
}

// Run executes one cycle.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (Report, error) {
	return e.scheduler.Run(ctx, opts)
}

// Summary returns the ledger of date; empty means today.
func (e *Engine) Summary(ctx context.Context, date string) (Summary, error) {
	return status.FromLedger(ctx, e.ledger, date)
}

// Clear removes the record of site on date so the site runs again.
func (e *Engine) Clear(ctx context.Context, date, site string) error {
	if date == "" {
		date = e.ledger.Today()
	}
	return e.ledger.Clear(ctx, date, site, false)
}

// Close releases the store.
func (e *Engine) Close() error { return e.backend.Close() }
