package cli

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control-surface API and dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RunServe(cmd.Context())
	},
}
