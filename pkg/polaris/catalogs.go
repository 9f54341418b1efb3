package polaris

import (
	"context"
	"net/http"
)

// CreateCatalog creates a catalog. A conflict means a catalog with that name
// already exists and is reported through Outcome, not as an error.
func (c *Client) CreateCatalog(ctx context.Context, catalog Catalog) (Outcome, error) {
	return c.ensure(ctx, http.MethodPost, managementPath("catalogs"), createCatalogRequest{Catalog: catalog})
}

// ListCatalogs returns the catalogs document as served, typically
// {"catalogs": [...]}.
func (c *Client) ListCatalogs(ctx context.Context) (map[string]any, error) {
	return c.list(ctx, managementPath("catalogs"))
}

// CreateCatalogRole creates a catalog role inside catalogName.
func (c *Client) CreateCatalogRole(ctx context.Context, catalogName, role string) (Outcome, error) {
	path := managementPath("catalogs", catalogName, "catalog-roles")
	return c.ensure(ctx, http.MethodPost, path, catalogRoleRequest{CatalogRole: CatalogRole{Name: role}})
}
