package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/loykin/checkin/cmd/checkin/config"
	"github.com/loykin/checkin/internal/adapter"
	"github.com/loykin/checkin/internal/captcha"
	"github.com/loykin/checkin/internal/checkin"
	"github.com/loykin/checkin/internal/common"
	"github.com/loykin/checkin/internal/credential"
	"github.com/loykin/checkin/internal/httpc"
	"github.com/loykin/checkin/internal/ledger"
	"github.com/loykin/checkin/internal/metrics"
	"github.com/loykin/checkin/internal/retry"
	"github.com/loykin/checkin/internal/scheduler"
	"github.com/loykin/checkin/internal/store"
	"github.com/loykin/checkin/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
)

// app holds everything a command needs, built from one config document.
type app struct {
	doc       config.ConfigDoc
	logger    *common.Logger
	backend   store.Connector
	ledger    *ledger.Ledger
	scheduler *scheduler.Scheduler
	registry  *prometheus.Registry
	flare     *transport.FlareSolverr
}

// loadConfig reads the document named by the config flag/env and applies
// flag overrides.
func loadConfig(v *viper.Viper) (config.ConfigDoc, error) {
	path := strings.TrimSpace(v.GetString("config"))
	if path == "" {
		return config.ConfigDoc{}, fmt.Errorf("%w: no config file given", config.ErrInvalid)
	}
	doc, err := config.Load(path)
	if err != nil {
		return doc, err
	}
	if lvl := strings.TrimSpace(v.GetString("log_level")); lvl != "" {
		doc.Logging.Level = lvl
	}
	return doc, nil
}

// newApp validates doc and wires the check-in stack. out receives the logs.
func newApp(doc config.ConfigDoc, out io.Writer) (*app, error) {
	reg := adapter.Default()
	if err := doc.Validate(reg); err != nil {
		return nil, err
	}
	logger := doc.Logger(out)

	retryCfg := retry.DefaultRetryConfig()
	retryCfg.Logger = logger
	backend, err := store.Open(doc.Store, retryCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	client := (&httpc.Httpc{
		TlsConfig: &tls.Config{InsecureSkipVerify: doc.Insecure}, // #nosec G402 -- opt-in for self-signed trackers
		Timeout:   doc.RequestTimeout,
		UserAgent: doc.UserAgent,
		Proxy:     doc.Proxy,
	}).New()

	a := &app{doc: doc, logger: logger, backend: backend, ledger: ledger.New(backend, logger)}
	transports := transport.Set{Direct: transport.NewDirect(client)}
	if doc.FlareSolverr.URL != "" {
		a.flare = transport.NewFlareSolverr(client, doc.FlareSolverr.URL, doc.FlareSolverr.MaxTimeout)
		transports.FlareSolverr = a.flare
	}

	var source credential.Source
	if doc.CookieCloud.Enabled() {
		source = credential.NewCookieCloud(client, doc.CookieCloud.URL, doc.CookieCloud.UUID, doc.CookieCloud.Password, logger)
	}

	opts := adapter.Options{UserAgent: doc.UserAgent, Transport: doc.Transport, Logger: logger}
	if doc.Captcha.URL != "" {
		opts.Captcha = &captcha.HTTPSolver{
			Client:     client,
			Endpoint:   doc.Captcha.URL,
			Field:      doc.Captcha.Field,
			ResultPath: doc.Captcha.ResultPath,
		}
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	a.scheduler = &scheduler.Scheduler{
		Registry: reg,
		Ledger:   a.ledger,
		Coordinator: &checkin.Coordinator{
			Executor: &checkin.Executor{
				Transports:  transports,
				Timeout:     doc.RequestTimeout,
				GetMessages: doc.GetMessages,
				GetDetails:  doc.GetDetails,
			},
			Credentials: credential.NewStore(backend),
			Source:      source,
			MaxAttempts: doc.MaxAttempts,
			Retry:       &retry.Config{InitialDelay: doc.RetryDelay, MaxDelay: doc.RetryDelay, BackoffFactor: 1},
			Backup:      doc.CookieBackup,
			Metrics:     m,
		},
		Sites:         doc.Sites,
		BuildOptions:  opts,
		MaxWorkers:    doc.MaxWorkers,
		Policy:        doc.Policy(),
		RetentionDays: doc.RetentionDays,
		Metrics:       m,
		Logger:        logger,
	}
	return a, nil
}

// openSession starts a FlareSolverr browser session when one is configured.
// Failure is not fatal; requests then run without a session.
func (a *app) openSession(ctx context.Context) {
	if a.flare == nil {
		return
	}
	if id, err := a.flare.CreateSession(ctx); err != nil {
		a.logger.Warn("flaresolverr session unavailable", "error", err)
	} else {
		a.logger.Debug("flaresolverr session created", "session", id)
	}
}

func (a *app) Close() error {
	if a.flare != nil {
		if err := a.flare.DestroySession(context.Background()); err != nil {
			a.logger.Warn("failed to destroy flaresolverr session", "error", err)
		}
	}
	return a.backend.Close()
}

// openLedger opens only the persistence layer, for commands that do not run targets.
func openLedger(doc config.ConfigDoc) (*ledger.Ledger, store.Connector, error) {
	logger := doc.Logger(os.Stderr)
	retryCfg := retry.DefaultRetryConfig()
	retryCfg.Logger = logger
	backend, err := store.Open(doc.Store, retryCfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return ledger.New(backend, logger), backend, nil
}
