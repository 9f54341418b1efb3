package main

import (
	"github.com/spf13/cobra"

	"github.com/lakehouse-tools/polaris-bootstrap/pkg/bootstrap"
)

func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "List catalogs and the principal's roles without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.resolveSecrets(cmd.Context()); err != nil {
				return err
			}
			runner := bootstrap.NewRunner(a.cfg, a.client(), a.logger.WithName("bootstrap"), a.reporter())
			return runner.Report(cmd.Context())
		},
	}
}

// reporter prints listings to stdout in the selected format.
func (a *app) reporter() bootstrap.Reporter {
	return bootstrap.ReporterFunc(func(section string, doc map[string]any) error {
		switch section {
		case bootstrap.SectionCatalogs:
			a.logger.Info("catalogs", "count", len(bootstrap.Names(doc, "catalogs")))
			return printOutput(a.stdout, a.format, doc, catalogHeaders, catalogRows(doc))
		case bootstrap.SectionPrincipalRoles:
			a.logger.Info("principal roles", "principal", a.cfg.RBAC.Principal)
			return printOutput(a.stdout, a.format, doc, roleHeaders, roleRows(doc))
		default:
			return printOutput(a.stdout, a.format, doc, nil, nil)
		}
	})
}
