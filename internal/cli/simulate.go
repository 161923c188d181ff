package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateAsset    string
	simulatePrevious string
	simulateCurrent  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate an alert for a given price move without touching the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		previous, err := decimal.NewFromString(simulatePrevious)
		if err != nil {
			return fmt.Errorf("parse --previous: %w", err)
		}
		current, err := decimal.NewFromString(simulateCurrent)
		if err != nil {
			return fmt.Errorf("parse --current: %w", err)
		}

		return getApp().SimulateAlert(cmd.Context(), simulateAsset, previous, current)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAsset, "asset", "BTC", "Asset symbol")
	simulateCmd.Flags().StringVar(&simulatePrevious, "previous", "", "Previous price")
	simulateCmd.Flags().StringVar(&simulateCurrent, "current", "", "Current price")
	_ = simulateCmd.MarkFlagRequired("previous")
	_ = simulateCmd.MarkFlagRequired("current")
}
