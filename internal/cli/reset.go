package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"jupwatcher/internal/ledger"
)

var resetCmd = &cobra.Command{
	Use:   "reset <side> <price>",
	Short: "Re-arm a fired alert threshold",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		side := ledger.Side(args[0])
		price, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", args[1], err)
		}
		return getApp().Reset(cmd.Context(), side, price)
	},
}
