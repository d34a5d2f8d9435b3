package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the polling price monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RunMonitor(cmd.Context())
	},
}
