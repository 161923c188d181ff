package cli

import (
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs registered on the cron service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Jobs(cmd.Context())
	},
}
