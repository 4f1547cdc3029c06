package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"beetbot/internal/logging"
	"beetbot/internal/session"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Show import sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := session.Open(cfg.StatePath(), logging.NewNop())
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			sessions, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if !all {
				filtered := sessions[:0]
				for _, sess := range sessions {
					if !sess.Step.Terminal() {
						filtered = append(filtered, sess)
					}
				}
				sessions = filtered
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
				return nil
			}

			rows := make([][]string, 0, len(sessions))
			for _, sess := range sessions {
				rows = append(rows, []string{
					sess.Name,
					string(sess.Step),
					fmt.Sprintf("%d", len(sess.Candidates)),
					fmt.Sprintf("%d", sess.Revision),
					sess.UpdatedAt.Local().Format(time.RFC3339),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "Step", "Candidates", "Revision", "Updated"},
				rows, 2, 3))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include completed, failed, cancelled, and skipped sessions")

	cmd.AddCommand(newSessionsClearCommand(ctx))
	return cmd
}

func newSessionsClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove terminal sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := session.Open(cfg.StatePath(), logging.NewNop())
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			removed, err := store.ClearTerminal(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d sessions.\n", removed)
			return nil
		},
	}
}
