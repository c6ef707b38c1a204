package main

import (
	"github.com/spf13/cobra"

	"github.com/hammamikhairi/turnocall/internal/config"
)

// newRootCmd creates the root turnocall command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "turnocall",
		Short:         "Clinic ticket-call announcements",
		Long:          "turnocall speaks and shows ticket calls on waiting-room displays.\nCalls arrive by broadcast and from the ticket database change feed.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newDisplayCmd(),
		newCallCmd(),
		newRecallCmd(),
		newRedirectCmd(),
		newCompleteCmd(),
		newIssueCmd(),
		newVoicesCmd(),
		newMigrateCmd(),
	)

	return cmd
}
