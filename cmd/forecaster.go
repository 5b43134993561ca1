package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"orderdesk/forecast"
)

var forecasterCmd = &cobra.Command{
	Use:   "forecaster",
	Short: "Read a daily revenue series on stdin and write a forecast to stdout",
	Long: `forecaster is the external computation behind the forecast endpoint. It
reads a JSON array of {date, totalRevenue} and writes one JSON envelope
{success, data | error}. It exits nonzero only when its input is unreadable.`,
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		horizon, _ := cmd.Flags().GetInt("horizon")
		return forecast.Serve(os.Stdin, os.Stdout, horizon)
	},
}

func init() {
	forecasterCmd.Flags().Int("horizon", 7, "Number of days to forecast")
}
