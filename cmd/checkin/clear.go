package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newClearCmd(v *viper.Viper) *cobra.Command {
	var (
		date      string
		site      string
		keepCount bool
	)
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear ledger records so sites run again",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadConfig(v)
			if err != nil {
				return err
			}
			l, backend, err := openLedger(doc)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			if date == "" {
				date = l.Today()
			}
			out := cmd.OutOrStdout()
			if site == "" {
				if err := l.ClearDate(cmd.Context(), date); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "cleared %s\n", date)
				return nil
			}
			if err := l.Clear(cmd.Context(), date, site, keepCount); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "cleared %s %s\n", date, site)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to clear, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&site, "site", "", "clear only this site")
	cmd.Flags().BoolVar(&keepCount, "keep-count", false, "keep the failure count of the site")
	return cmd
}
