// Package bootstrap provisions a catalog service with a catalog and the
// RBAC wiring around it. Every step is safe to repeat: a conflict answer
// means the state already exists and counts as success.
package bootstrap

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-logr/logr"

	"github.com/lakehouse-tools/polaris-bootstrap/pkg/config"
	"github.com/lakehouse-tools/polaris-bootstrap/pkg/polaris"
)

// Report section names passed to a Reporter.
const (
	SectionCatalogs       = "catalogs"
	SectionPrincipalRoles = "principalRoles"
)

// Reporter receives the listings produced for operator visibility.
type Reporter interface {
	Report(section string, doc map[string]any) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(section string, doc map[string]any) error

// Report calls f.
func (f ReporterFunc) Report(section string, doc map[string]any) error {
	return f(section, doc)
}

// Runner executes the provisioning sequence.
type Runner struct {
	cfg      *config.Config
	client   *polaris.Client
	logger   logr.Logger
	reporter Reporter
}

// NewRunner creates a Runner. A nil reporter discards the listings.
func NewRunner(cfg *config.Config, client *polaris.Client, logger logr.Logger, reporter Reporter) *Runner {
	if reporter == nil {
		reporter = ReporterFunc(func(string, map[string]any) error { return nil })
	}
	return &Runner{
		cfg:      cfg,
		client:   client,
		logger:   logger,
		reporter: reporter,
	}
}

// ProbeOptions derives the availability poll settings from cfg.
func ProbeOptions(cfg *config.Config) polaris.ProbeOptions {
	return polaris.ProbeOptions{
		Attempts: cfg.Probe.Attempts,
		Interval: cfg.Probe.Interval,
		Timeout:  cfg.Probe.Timeout,
	}
}

// CatalogFromConfig builds the create payload of an S3-backed internal catalog.
func CatalogFromConfig(c config.CatalogConfig) polaris.Catalog {
	return polaris.Catalog{
		Name: c.Name,
		Type: polaris.CatalogTypeInternal,
		Properties: map[string]string{
			polaris.PropDefaultBaseLocation: c.DefaultBaseLocation,
			polaris.PropS3Endpoint:          c.S3Endpoint,
			polaris.PropS3PathStyleAccess:   strconv.FormatBool(c.S3PathStyleAccess),
			polaris.PropS3AccessKeyID:       c.S3AccessKey,
			polaris.PropS3SecretAccessKey:   c.S3SecretKey,
			polaris.PropS3Region:            c.S3Region,
		},
		StorageConfigInfo: polaris.StorageConfigInfo{
			StorageType:      polaris.StorageTypeS3,
			AllowedLocations: c.AllowedLocations,
			RoleARN:          c.RoleARN,
		},
	}
}

// WaitUntilUp blocks until the service answers or the poll gives up.
func (r *Runner) WaitUntilUp(ctx context.Context) error {
	r.logger.Info("waiting for catalog service", "url", r.client.BaseURL(), "attempts", r.cfg.Probe.Attempts)
	if err := r.client.WaitUntilUp(ctx, ProbeOptions(r.cfg)); err != nil {
		return err
	}
	r.logger.Info("catalog service is up", "url", r.client.BaseURL())
	return nil
}

// Authenticate exchanges the configured client credentials for a token and
// returns a client that carries it.
func (r *Runner) Authenticate(ctx context.Context) (*polaris.Client, error) {
	token, err := r.client.FetchToken(ctx, polaris.Credentials{
		ClientID:     r.cfg.ClientID,
		ClientSecret: r.cfg.ClientSecret,
		Scope:        r.cfg.Scope,
	})
	if err != nil {
		return nil, fmt.Errorf("acquiring access token: %w", err)
	}
	r.logger.Info("access token acquired", "clientID", r.cfg.ClientID)
	return r.client.WithToken(token), nil
}

// step is one tolerant provisioning call.
type step struct {
	action string
	msg    string
	kv     []any
	call   func(ctx context.Context, c *polaris.Client) (polaris.Outcome, error)
}

func (r *Runner) ensure(ctx context.Context, c *polaris.Client, s step) error {
	out, err := s.call(ctx, c)
	if err != nil {
		return fmt.Errorf("%s: %w", s.action, err)
	}
	kv := append(append([]any{}, s.kv...), "status", out.StatusCode, "alreadyExisted", out.AlreadyExisted())
	r.logger.Info(s.msg, kv...)
	return nil
}

// Run executes the whole sequence: wait, authenticate, create the catalog,
// list catalogs, wire RBAC and list the principal's roles. It stops at the
// first error; steps already applied are left in place.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.WaitUntilUp(ctx); err != nil {
		return err
	}

	c, err := r.Authenticate(ctx)
	if err != nil {
		return err
	}

	cat, rbac := r.cfg.Catalog, r.cfg.RBAC

	if err := r.ensure(ctx, c, step{
		action: fmt.Sprintf("creating catalog %s", cat.Name),
		msg:    "catalog ensured",
		kv:     []any{"catalog", cat.Name},
		call: func(ctx context.Context, c *polaris.Client) (polaris.Outcome, error) {
			return c.CreateCatalog(ctx, CatalogFromConfig(cat))
		},
	}); err != nil {
		return err
	}

	if err := r.reportCatalogs(ctx, c); err != nil {
		return err
	}

	for _, s := range r.rbacSteps() {
		if err := r.ensure(ctx, c, s); err != nil {
			return err
		}
	}

	if err := r.reportPrincipalRoles(ctx, c); err != nil {
		return err
	}

	r.logger.Info("bootstrap complete",
		"catalog", cat.Name,
		"catalogRole", rbac.CatalogRole,
		"principalRole", rbac.PrincipalRole,
		"principal", rbac.Principal)
	return nil
}

// rbacSteps returns the RBAC calls in dependency order: grant, principal
// role, catalog role binding, principal assignment. The optional catalog
// role creation goes first.
func (r *Runner) rbacSteps() []step {
	cat, rbac := r.cfg.Catalog, r.cfg.RBAC
	var steps []step

	if rbac.CreateCatalogRole {
		steps = append(steps, step{
			action: fmt.Sprintf("creating catalog role %s on %s", rbac.CatalogRole, cat.Name),
			msg:    "catalog role ensured",
			kv:     []any{"catalog", cat.Name, "catalogRole", rbac.CatalogRole},
			call: func(ctx context.Context, c *polaris.Client) (polaris.Outcome, error) {
				return c.CreateCatalogRole(ctx, cat.Name, rbac.CatalogRole)
			},
		})
	}

	return append(steps,
		step{
			action: fmt.Sprintf("granting %s to catalog role %s", rbac.Privilege, rbac.CatalogRole),
			msg:    "grant ensured",
			kv:     []any{"catalog", cat.Name, "catalogRole", rbac.CatalogRole, "privilege", rbac.Privilege},
			call: func(ctx context.Context, c *polaris.Client) (polaris.Outcome, error) {
				return c.GrantCatalogPrivilege(ctx, cat.Name, rbac.CatalogRole, rbac.Privilege)
			},
		},
		step{
			action: fmt.Sprintf("creating principal role %s", rbac.PrincipalRole),
			msg:    "principal role ensured",
			kv:     []any{"principalRole", rbac.PrincipalRole},
			call: func(ctx context.Context, c *polaris.Client) (polaris.Outcome, error) {
				return c.CreatePrincipalRole(ctx, rbac.PrincipalRole)
			},
		},
		step{
			action: fmt.Sprintf("connecting principal role %s to catalog role %s", rbac.PrincipalRole, rbac.CatalogRole),
			msg:    "roles connected",
			kv:     []any{"principalRole", rbac.PrincipalRole, "catalogRole", rbac.CatalogRole, "catalog", cat.Name},
			call: func(ctx context.Context, c *polaris.Client) (polaris.Outcome, error) {
				return c.AssignCatalogRole(ctx, rbac.PrincipalRole, cat.Name, rbac.CatalogRole)
			},
		},
		step{
			action: fmt.Sprintf("assigning principal role %s to %s", rbac.PrincipalRole, rbac.Principal),
			msg:    "principal role assigned",
			kv:     []any{"principal", rbac.Principal, "principalRole", rbac.PrincipalRole},
			call: func(ctx context.Context, c *polaris.Client) (polaris.Outcome, error) {
				return c.AssignPrincipalRole(ctx, rbac.Principal, rbac.PrincipalRole)
			},
		},
	)
}
