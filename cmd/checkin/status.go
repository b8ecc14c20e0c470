package main

import (
	"encoding/json"
	"fmt"

	"github.com/loykin/checkin/pkg/status"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	var (
		date    string
		verbose bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the ledger of a day",
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

			info, err := status.FromLedger(cmd.Context(), l, date)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			_, _ = fmt.Fprint(out, info.FormatHuman(verbose))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to show, YYYY-MM-DD (default today)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include details")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
