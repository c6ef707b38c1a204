package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/turnocall/internal/console"
)

// newCallCmd creates the "turnocall call" subcommand.
func newCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <ticket> <counter>",
		Short: "Call a waiting ticket to a counter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, console.Command{Kind: console.KindCall, Ticket: strings.ToUpper(args[0]), Arg: args[1]})
		},
	}
}

// newRecallCmd creates the "turnocall recall" subcommand.
func newRecallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recall <ticket>",
		Short: "Announce a serving ticket again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, console.Command{Kind: console.KindRecall, Ticket: strings.ToUpper(args[0])})
		},
	}
}

// newRedirectCmd creates the "turnocall redirect" subcommand.
func newRedirectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redirect <ticket> <service>",
		Short: "Refer a ticket to another service",
		Long:  "Closes the ticket and issues a waiting ticket in the target service.\nWhen that ticket is called, displays announce where it was referred from.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, console.Command{
				Kind:   console.KindRedirect,
				Ticket: strings.ToUpper(args[0]),
				Arg:    strings.ToUpper(args[1]),
			})
		},
	}
}

// newCompleteCmd creates the "turnocall done" subcommand.
func newCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "done <ticket>",
		Aliases: []string{"complete"},
		Short:   "Finish serving a ticket",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, console.Command{Kind: console.KindComplete, Ticket: strings.ToUpper(args[0])})
		},
	}
}

// newIssueCmd creates the "turnocall issue" subcommand.
func newIssueCmd() *cobra.Command {
	var vip bool
	cmd := &cobra.Command{
		Use:   "issue <service>",
		Short: "Issue a new waiting ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, console.Command{Kind: console.KindIssue, Arg: strings.ToUpper(args[0]), VIP: vip})
		},
	}
	cmd.Flags().BoolVar(&vip, "vip", false, "put the ticket ahead of regular tickets")
	return cmd
}

// runAction executes one operator command and, for calls, broadcasts the
// announcement to every display.
func runAction(cmd *cobra.Command, c console.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	a.startTelemetry(ctx)

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	out := console.NewPrinter(a.log.Named("console"), func(format string, args ...any) {
		fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
	})
	pipeline, resolver, err := a.openPipeline(ctx, store, pipelineParts{display: out, toaster: out})
	if err != nil {
		return err
	}

	op := console.NewOperator(store, resolver, pipeline, out, a.log.Named("console"))
	msg, err := op.Execute(ctx, c)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Kind, err)
	}
	out.Info("%s", msg)
	return nil
}
