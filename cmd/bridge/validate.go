package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/beanstalk-bridge/internal/config"
)

func newValidateCmd(load func() (*config.Config, error)) *cobra.Command {
	var serveMode bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			validate := cfg.Validate
			if serveMode {
				validate = cfg.ValidateServeConfig
			}
			if err := validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %d task(s)\n", len(cfg.Tasks))
			return nil
		},
	}
	cmd.Flags().BoolVar(&serveMode, "serve", false, "Also check the settings required by serve")

	return cmd
}
