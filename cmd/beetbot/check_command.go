package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"beetbot/internal/beets"
	"beetbot/internal/logging"
	"beetbot/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, binaries, beets, and the Telegram token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			client, err := beets.New(beets.Config{
				Binary:        cfg.Beets.Binary,
				Container:     cfg.Beets.Container,
				User:          cfg.Beets.User,
				Pretend:       cfg.Beets.Pretend,
				ImportTimeout: cfg.ImportTimeout(),
				ConfigTimeout: cfg.ConfigTimeout(),
			}, logging.NewNop())
			if err != nil {
				return err
			}

			results := preflight.RunAll(cmd.Context(), cfg, client)
			// RunAll only validates the Telegram config shape; replace
			// that row with a live API check.
			for i, result := range results {
				if result.Name == "Telegram" && result.Passed {
					results[i] = preflight.CheckTelegram(cfg.Telegram.Token)
				}
			}

			failed := 0
			rows := make([][]string, 0, len(results))
			for _, result := range results {
				status := "OK"
				if !result.Passed {
					status = "FAIL"
					failed++
				}
				rows = append(rows, []string{result.Name, status, result.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Check", "Status", "Detail"}, rows))

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}
