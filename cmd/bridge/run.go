package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/beanstalk-bridge/internal/config"
	"github.com/cuongbtq/beanstalk-bridge/internal/history"
)

func newRunCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run <task>",
		Short: "Execute one run of a task and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := initDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			if cfg.Worker.RunTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Worker.RunTimeout)
				defer cancel()
			}

			run, err := d.runner.Run(ctx, args[0])
			if run == nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s produced=%d accepted=%d rejected=%d undecided=%d failed=%d\n",
				run.RunID, run.Status, run.Produced, run.Accepted, run.Rejected, run.Undecided, run.Failed)
			if run.Status == history.RunStatusWarning {
				d.logger.Warn("Run finished with warnings", slog.String("warning", run.Warning))
			}
			return err
		},
	}
}
