package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/checkin/internal/scheduler"
	"github.com/loykin/checkin/pkg/status"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	var (
		opts    scheduler.Options
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one check-in cycle now and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadConfig(v)
			if err != nil {
				return err
			}
			a, err := newApp(doc, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.openSession(ctx)

			report, err := a.scheduler.Run(ctx, opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), status.FormatReport(report, verbose))
			if code := report.ExitCode(); code != ExitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Site, "site", "", "run only this site")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "re-run sites that already succeeded today")
	cmd.Flags().BoolVar(&opts.IgnoreBackoff, "ignore-backoff", false, "run sites held back by repeated failures")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include messages and details in the report")
	return cmd
}
