package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCmd builds the command tree. Every call gets its own viper so
// flag state never leaks between invocations.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetDefault("config", "./config.yaml")
	v.SetDefault("log_level", "")

	// Environment variables support: CHECKIN_CONFIG, CHECKIN_LOG_LEVEL
	v.SetEnvPrefix("CHECKIN")
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "checkin",
		Short:         "Run daily check-ins against configured sites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", v.GetString("config"), "path to the config yaml")
	root.PersistentFlags().String("log-level", "", "override logging.level (error, warn, info, debug)")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newRunCmd(v),
		newServeCmd(v),
		newStatusCmd(v),
		newClearCmd(v),
		newValidateCmd(v),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitHandler.LogFatalError(err, "command execution failed")
	}
}
