package polaris

import (
	"context"
	"net/http"
)

// GrantCatalogPrivilege grants privilege on catalogName to catalogRole.
func (c *Client) GrantCatalogPrivilege(ctx context.Context, catalogName, catalogRole, privilege string) (Outcome, error) {
	path := managementPath("catalogs", catalogName, "catalog-roles", catalogRole, "grants")
	body := addGrantRequest{Grant: CatalogGrant{Type: GrantTypeCatalog, Privilege: privilege}}
	return c.ensure(ctx, http.MethodPut, path, body)
}

// CreatePrincipalRole creates a principal role.
func (c *Client) CreatePrincipalRole(ctx context.Context, role string) (Outcome, error) {
	body := principalRoleRequest{PrincipalRole: PrincipalRole{Name: role}}
	return c.ensure(ctx, http.MethodPost, managementPath("principal-roles"), body)
}

// AssignCatalogRole binds catalogRole of catalogName to principalRole.
func (c *Client) AssignCatalogRole(ctx context.Context, principalRole, catalogName, catalogRole string) (Outcome, error) {
	path := managementPath("principal-roles", principalRole, "catalog-roles", catalogName)
	body := catalogRoleRequest{CatalogRole: CatalogRole{Name: catalogRole}}
	return c.ensure(ctx, http.MethodPut, path, body)
}

// AssignPrincipalRole binds principalRole to principal.
func (c *Client) AssignPrincipalRole(ctx context.Context, principal, principalRole string) (Outcome, error) {
	path := managementPath("principals", principal, "principal-roles")
	body := principalRoleRequest{PrincipalRole: PrincipalRole{Name: principalRole}}
	return c.ensure(ctx, http.MethodPut, path, body)
}

// ListPrincipalRoles returns the principal's roles document as served,
// typically {"roles": [...]}.
func (c *Client) ListPrincipalRoles(ctx context.Context, principal string) (map[string]any, error) {
	return c.list(ctx, managementPath("principals", principal, "principal-roles"))
}
