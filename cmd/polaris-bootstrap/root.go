package main

import (
	"context"
	"io"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lakehouse-tools/polaris-bootstrap/pkg/config"
	"github.com/lakehouse-tools/polaris-bootstrap/pkg/polaris"
	"github.com/lakehouse-tools/polaris-bootstrap/pkg/secretref"
)

// app carries per-invocation state shared by the subcommands.
type app struct {
	stdout io.Writer
	stderr io.Writer

	v          *viper.Viper
	envFile    string
	outputFlag string

	cfg    *config.Config
	format outputFormat
	zap    *zap.Logger
	logger logr.Logger

	// newResolver builds the secret resolver; replaced in tests.
	newResolver func(defaultNamespace string) (secretref.Resolver, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		v:      config.NewViper(),
		logger: logr.Discard(),
		newResolver: func(ns string) (secretref.Resolver, error) {
			return secretref.NewInClusterResolver(ns)
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "polaris-bootstrap",
		Short: "Idempotently provision a catalog service with a catalog and RBAC wiring",
		Long: `polaris-bootstrap waits for the catalog service to come up, obtains an
OAuth2 client-credentials token, creates a catalog backed by S3-compatible
object storage and wires up role-based access control:

  1. grant a privilege on the catalog to a catalog role
  2. create a principal role
  3. connect the principal role to the catalog role
  4. assign the principal role to a principal

Every step treats "already exists" (HTTP 409) as success, so the command can
run on every deployment. All settings come from POLARIS_* environment
variables; see "polaris-bootstrap config" for the effective values.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.zap != nil {
				_ = a.zap.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBootstrap(cmd.Context())
		},
	}

	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", "", "Read KEY=VALUE settings from this file (environment variables take precedence)")
	flags.StringVarP(&a.outputFlag, "output", "o", "json", "Output format for listings: json, yaml, table")
	flags.String("server", "http://localhost:8181", "Catalog service URL (POLARIS_URL)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error (LOG_LEVEL)")
	flags.String("log-format", "console", "Log format: console, json (LOG_FORMAT)")

	bindFlags(a.v, flags, map[string]string{
		"server":     config.KeyURL,
		"log-level":  config.KeyLogLevel,
		"log-format": config.KeyLogFormat,
	})

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newProbeCmd(a))
	rootCmd.AddCommand(newReportCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// bindFlags lets the named flags override their environment variables.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
}

// setup loads and validates configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if a.envFile != "" {
		if err := config.ReadEnvFile(a.v, a.envFile); err != nil {
			return err
		}
	}

	format, err := parseOutputFormat(a.outputFlag)
	if err != nil {
		return err
	}
	a.format = format

	a.cfg = config.Load(a.v)

	a.zap, err = newZapLogger(a.cfg.Log, a.stderr)
	if err != nil {
		return err
	}
	a.logger = newLogr(a.zap)

	return a.cfg.Validate()
}

// resolveSecrets replaces secret:// references in the configuration.
func (a *app) resolveSecrets(ctx context.Context) error {
	if !a.cfg.HasSecretRefs() {
		return nil
	}
	resolver, err := a.newResolver(a.cfg.SecretNamespace)
	if err != nil {
		return err
	}
	if err := secretref.ResolveAll(ctx, resolver, a.cfg.SecretFields()); err != nil {
		return err
	}
	a.logger.Info("resolved secret references", "namespace", a.cfg.SecretNamespace)
	return nil
}

func (a *app) client() *polaris.Client {
	return polaris.NewClient(a.cfg.ServerURL,
		polaris.WithTimeout(a.cfg.Timeout),
		polaris.WithLogger(a.logger.WithName("polaris")),
	)
}
