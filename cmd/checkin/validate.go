package main

import (
	"fmt"

	"github.com/loykin/checkin/internal/adapter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and every site entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadConfig(v)
			if err != nil {
				return err
			}
			reg := adapter.Default()
			if err := doc.Validate(reg); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range doc.SiteNames() {
				_, _ = fmt.Fprintf(out, "%s: %s\n", name, reg.Key(name, adapter.Spec(doc.Sites[name])))
			}
			_, _ = fmt.Fprintf(out, "config ok: %d site(s)\n", len(doc.Sites))
			return nil
		},
	}
}
