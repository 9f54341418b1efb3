package main

import (
	"github.com/spf13/cobra"

	"github.com/lakehouse-tools/polaris-bootstrap/pkg/bootstrap"
)

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Wait until the catalog service answers, then exit",
		Long: `Poll the catalog service root until it responds with a status below 500.
Exits non-zero once POLARIS_PROBE_ATTEMPTS probes have failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := bootstrap.NewRunner(a.cfg, a.client(), a.logger.WithName("bootstrap"), nil)
			return runner.WaitUntilUp(cmd.Context())
		},
	}
}
