package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "orbd",
	Short: "Cross-chain transaction orchestration daemon",
	Long: `orbd runs the cross-chain transaction orchestration core: it expands
dApp transaction intents into multi-chain operation plans, signs and submits
them through the route service, and polls operation statuses until each
request resolves.

Configuration comes from the environment (or a .env file); flags and
ORB_-prefixed variables override individual settings.`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("metrics-port", "", "Port for the health and metrics server")
	rootCmd.PersistentFlags().String("store", "", "Path of the pending request store file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, notice, error)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable log coloring")

	_ = viper.BindPFlag("metrics_port", rootCmd.PersistentFlags().Lookup("metrics-port"))
	_ = viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("no_color", rootCmd.PersistentFlags().Lookup("no-color"))

	viper.SetEnvPrefix("ORB")
	viper.AutomaticEnv()
}
