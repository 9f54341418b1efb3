package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lakehouse-tools/polaris-bootstrap/pkg/bootstrap"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full provisioning sequence (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBootstrap(cmd.Context())
		},
	}
}

func (a *app) runBootstrap(ctx context.Context) error {
	if err := a.resolveSecrets(ctx); err != nil {
		return err
	}
	runner := bootstrap.NewRunner(a.cfg, a.client(), a.logger.WithName("bootstrap"), a.reporter())
	return runner.Run(ctx)
}
