package bootstrap

import (
	"context"
	"fmt"

	"github.com/lakehouse-tools/polaris-bootstrap/pkg/polaris"
	"github.com/lakehouse-tools/polaris-bootstrap/pkg/redact"
)

func (r *Runner) reportCatalogs(ctx context.Context, c *polaris.Client) error {
	doc, err := c.ListCatalogs(ctx)
	if err != nil {
		return fmt.Errorf("listing catalogs: %w", err)
	}
	return r.reporter.Report(SectionCatalogs, RedactCatalogs(doc))
}

func (r *Runner) reportPrincipalRoles(ctx context.Context, c *polaris.Client) error {
	doc, err := c.ListPrincipalRoles(ctx, r.cfg.RBAC.Principal)
	if err != nil {
		return fmt.Errorf("listing principal roles of %s: %w", r.cfg.RBAC.Principal, err)
	}
	return r.reporter.Report(SectionPrincipalRoles, doc)
}

// Report authenticates and emits both listings without changing anything.
func (r *Runner) Report(ctx context.Context) error {
	c, err := r.Authenticate(ctx)
	if err != nil {
		return err
	}
	if err := r.reportCatalogs(ctx, c); err != nil {
		return err
	}
	return r.reportPrincipalRoles(ctx, c)
}

// RedactCatalogs masks credential properties of every catalog in a
// catalogs listing document.
func RedactCatalogs(doc map[string]any) map[string]any {
	items, ok := doc[SectionCatalogs].([]any)
	if !ok {
		return doc
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	redacted := make([]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			redacted = append(redacted, redact.Any(m))
			continue
		}
		redacted = append(redacted, item)
	}
	out[SectionCatalogs] = redacted
	return out
}

// Names extracts the "name" field of every object under key in doc.
func Names(doc map[string]any, key string) []string {
	items, _ := doc[key].([]any)
	var names []string
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if name, ok := m["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names
}
