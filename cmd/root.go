package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"orderdesk/config"
)

// Version is stamped at build time with -ldflags "-X orderdesk/cmd.Version=...".
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "orderdesk",
	Short:        "Order fulfillment backend for a restaurant",
	Long:         `orderdesk runs the order lifecycle API, the realtime order feed and the sales analytics and forecasting endpoints used by the kitchen, delivery, cashier and admin dashboards.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml); environment variables override it")
	rootCmd.AddCommand(serveCmd, forecasterCmd, seedCmd, watchCmd, migrateCmd)
}

// loadConfig reads the configuration and publishes it to config.AppConfig.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	config.AppConfig = *cfg
	return cfg, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
