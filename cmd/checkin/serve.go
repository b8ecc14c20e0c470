package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/checkin/internal/scheduler"
	"github.com/loykin/checkin/internal/server"
	"github.com/loykin/checkin/pkg/router"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run check-ins daily at the configured schedule and serve the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadConfig(v)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				doc.Server.Addr = addr
			}
			a, err := newApp(doc, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.openSession(ctx)
			return serve(ctx, a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address of the control API (empty disables it)")
	return cmd
}

// serve runs the daemon, and the control API when an address is set,
// until ctx is cancelled.
func serve(ctx context.Context, a *app) error {
	log := a.logger.WithComponent("serve")
	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	var r *router.Router
	if a.doc.Server.Addr != "" {
		r = router.New(router.Options{BasePath: a.doc.Server.BasePath})
		(&server.Handler{Scheduler: a.scheduler, Ledger: a.ledger, Gatherer: a.registry, Logger: a.logger}).Register(r)
		srv = &http.Server{Addr: a.doc.Server.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			log.Info("control API listening", "addr", srv.Addr, "base_path", r.BasePath())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		d := &scheduler.Daemon{
			Scheduler: a.scheduler,
			At:        a.doc.Schedule,
			Logger:    a.logger,
			OnReport: func(rep scheduler.Report) {
				log.Info("check-in cycle finished",
					"date", rep.Date,
					"succeeded", len(rep.Succeeded),
					"failed", len(rep.Failed),
					"skipped", len(rep.Skipped),
					"duration", rep.Duration)
			},
		}
		err := d.Run(gctx)
		if srv != nil {
			r.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				log.Warn("control API shutdown", "error", serr)
			}
		}
		return err
	})
	return g.Wait()
}
