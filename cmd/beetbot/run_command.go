package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"beetbot/internal/daemon"
	"beetbot/internal/logging"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bot and serve Telegram updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			level := logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			logger, err := logging.New(logging.Options{
				Level:   level,
				Format:  cfg.Logging.Format,
				LogFile: cfg.LogFile(),
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			d, err := daemon.New(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				_ = d.Close()
			}()

			return d.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}
