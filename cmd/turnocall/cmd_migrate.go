package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/turnocall/internal/storage/postgres"
)

// newMigrateCmd creates the "turnocall migrate" subcommand.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ticket schema and load the configured rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Database.DSN == "" {
				return errors.New("migrate needs a database DSN (--dsn or TURNOCALL_DB_DSN)")
			}
			ctx := cmd.Context()
			s, err := postgres.Open(ctx, a.cfg.Database.DSN, a.log.Named("store"))
			if err != nil {
				return err
			}
			defer s.Close()

			if err := a.migrate(ctx, s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready, %d rooms loaded\n", len(a.cfg.Rooms))
			return nil
		},
	}
}
