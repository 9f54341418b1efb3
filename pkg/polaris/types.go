package polaris

// CatalogTypeInternal marks a catalog whose tables the service manages.
const CatalogTypeInternal = "INTERNAL"

// StorageTypeS3 marks an S3-compatible storage backend.
const StorageTypeS3 = "S3"

// GrantTypeCatalog scopes a grant to a whole catalog.
const GrantTypeCatalog = "catalog"

// PrivilegeCatalogManageContent lets a catalog role create and modify
// namespaces and tables in the catalog.
const PrivilegeCatalogManageContent = "CATALOG_MANAGE_CONTENT"

// Catalog property keys understood by the service.
const (
	PropDefaultBaseLocation = "default-base-location"
	PropS3Endpoint          = "s3.endpoint"
	PropS3PathStyleAccess   = "s3.path-style-access"
	PropS3AccessKeyID       = "s3.access-key-id"
	PropS3SecretAccessKey   = "s3.secret-access-key"
	PropS3Region            = "s3.region"
)

// Catalog is the create payload of a catalog.
type Catalog struct {
	Name              string            `json:"name"`
	Type              string            `json:"type"`
	Properties        map[string]string `json:"properties"`
	StorageConfigInfo StorageConfigInfo `json:"storageConfigInfo"`
}

// StorageConfigInfo restricts where the catalog may place data and which
// IAM role the service assumes to do so.
type StorageConfigInfo struct {
	StorageType      string   `json:"storageType"`
	AllowedLocations []string `json:"allowedLocations"`
	RoleARN          string   `json:"roleArn,omitempty"`
}

// CatalogGrant associates a privilege with a catalog role.
type CatalogGrant struct {
	Type      string `json:"type"`
	Privilege string `json:"privilege"`
}

// CatalogRole is a named privilege holder scoped to one catalog.
type CatalogRole struct {
	Name string `json:"name"`
}

// PrincipalRole is a named grouping bound to principals and catalog roles.
type PrincipalRole struct {
	Name string `json:"name"`
}

type createCatalogRequest struct {
	Catalog Catalog `json:"catalog"`
}

type addGrantRequest struct {
	Grant CatalogGrant `json:"grant"`
}

type catalogRoleRequest struct {
	CatalogRole CatalogRole `json:"catalogRole"`
}

type principalRoleRequest struct {
	PrincipalRole PrincipalRole `json:"principalRole"`
}
