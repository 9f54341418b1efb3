// Package config loads the bootstrap configuration from environment
// variables, an optional env file and command-line flags.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lakehouse-tools/polaris-bootstrap/pkg/polaris"
	"github.com/lakehouse-tools/polaris-bootstrap/pkg/redact"
	"github.com/lakehouse-tools/polaris-bootstrap/pkg/secretref"
)

// Environment variable names. They double as viper keys.
const (
	KeyURL                 = "POLARIS_URL"
	KeyClientID            = "POLARIS_CLIENT_ID"
	KeyClientSecret        = "POLARIS_CLIENT_SECRET"
	KeyScope               = "POLARIS_SCOPE"
	KeyCatalog             = "POLARIS_CATALOG"
	KeyS3Endpoint          = "POLARIS_S3_ENDPOINT"
	KeyS3Region            = "POLARIS_S3_REGION"
	KeyS3AccessKey         = "POLARIS_S3_ACCESS_KEY"
	KeyS3SecretKey         = "POLARIS_S3_SECRET_KEY"
	KeyS3PathStyleAccess   = "POLARIS_S3_PATH_STYLE_ACCESS"
	KeyDefaultBaseLocation = "POLARIS_DEFAULT_BASE_LOCATION"
	KeyRoleARN             = "POLARIS_ROLE_ARN"
	KeyAllowedLocations    = "POLARIS_ALLOWED_LOCATIONS"
	KeyCatalogRole         = "POLARIS_CATALOG_ROLE"
	KeyCatalogPrivilege    = "POLARIS_CATALOG_PRIVILEGE"
	KeyCreateCatalogRole   = "POLARIS_CREATE_CATALOG_ROLE"
	KeyPrincipalRole       = "POLARIS_PRINCIPAL_ROLE"
	KeyPrincipal           = "POLARIS_PRINCIPAL"
	KeyTimeout             = "POLARIS_TIMEOUT"
	KeyProbeAttempts       = "POLARIS_PROBE_ATTEMPTS"
	KeyProbeInterval       = "POLARIS_PROBE_INTERVAL"
	KeyProbeTimeout        = "POLARIS_PROBE_TIMEOUT"
	KeySecretNamespace     = "POLARIS_SECRET_NAMESPACE"
	KeyLogLevel            = "LOG_LEVEL"
	KeyLogFormat           = "LOG_FORMAT"
)

// Config holds everything the bootstrap sequence needs.
type Config struct {
	ServerURL    string
	ClientID     string
	ClientSecret string
	Scope        string

	Catalog CatalogConfig
	RBAC    RBACConfig
	Probe   ProbeConfig
	Log     LogConfig

	// Timeout bounds every management API request.
	Timeout time.Duration

	// SecretNamespace is used for secret:// references without a namespace.
	SecretNamespace string
}

// CatalogConfig describes the catalog and its object-storage backend.
type CatalogConfig struct {
	Name                string
	DefaultBaseLocation string
	S3Endpoint          string
	S3Region            string
	S3AccessKey         string
	S3SecretKey         string
	S3PathStyleAccess   bool
	RoleARN             string
	AllowedLocations    []string
}

// RBACConfig names the roles and principal wired up after catalog creation.
type RBACConfig struct {
	CatalogRole       string
	Privilege         string
	CreateCatalogRole bool
	PrincipalRole     string
	Principal         string
}

// ProbeConfig controls the availability poll.
type ProbeConfig struct {
	Attempts int
	Interval time.Duration
	Timeout  time.Duration
}

// LogConfig controls the zap logger built by the CLI.
type LogConfig struct {
	Level  string
	Format string
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyURL, "http://localhost:8181")
	v.SetDefault(KeyClientID, "root")
	v.SetDefault(KeyClientSecret, "secret")
	v.SetDefault(KeyScope, "PRINCIPAL_ROLE:ALL")
	v.SetDefault(KeyCatalog, "polariscatalog")
	v.SetDefault(KeyS3Endpoint, "http://minio:9000")
	v.SetDefault(KeyS3Region, "dummy-region")
	v.SetDefault(KeyS3AccessKey, "admin")
	v.SetDefault(KeyS3SecretKey, "password")
	v.SetDefault(KeyS3PathStyleAccess, true)
	v.SetDefault(KeyDefaultBaseLocation, "s3://warehouse")
	v.SetDefault(KeyRoleARN, "arn:aws:iam::000000000000:role/minio-polaris-role")
	v.SetDefault(KeyAllowedLocations, "s3://warehouse/*")
	v.SetDefault(KeyCatalogRole, "catalog_admin")
	v.SetDefault(KeyCatalogPrivilege, "CATALOG_MANAGE_CONTENT")
	v.SetDefault(KeyCreateCatalogRole, false)
	v.SetDefault(KeyPrincipalRole, "data_engineer")
	v.SetDefault(KeyPrincipal, "root")
	probe := polaris.DefaultProbeOptions()
	v.SetDefault(KeyTimeout, polaris.DefaultTimeout)
	v.SetDefault(KeyProbeAttempts, probe.Attempts)
	v.SetDefault(KeyProbeInterval, probe.Interval)
	v.SetDefault(KeyProbeTimeout, probe.Timeout)
	v.SetDefault(KeySecretNamespace, "default")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
}

// NewViper returns a viper instance with defaults registered and
// environment lookup enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return v
}

// ReadEnvFile merges KEY=VALUE pairs from path into v. Environment
// variables and flags still take precedence over the file.
func ReadEnvFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading env file %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from v. It does not validate; call Validate.
func Load(v *viper.Viper) *Config {
	return &Config{
		ServerURL:    strings.TrimRight(v.GetString(KeyURL), "/"),
		ClientID:     v.GetString(KeyClientID),
		ClientSecret: v.GetString(KeyClientSecret),
		Scope:        v.GetString(KeyScope),
		Catalog: CatalogConfig{
			Name:                v.GetString(KeyCatalog),
			DefaultBaseLocation: v.GetString(KeyDefaultBaseLocation),
			S3Endpoint:          v.GetString(KeyS3Endpoint),
			S3Region:            v.GetString(KeyS3Region),
			S3AccessKey:         v.GetString(KeyS3AccessKey),
			S3SecretKey:         v.GetString(KeyS3SecretKey),
			S3PathStyleAccess:   v.GetBool(KeyS3PathStyleAccess),
			RoleARN:             v.GetString(KeyRoleARN),
			AllowedLocations:    SplitList(v.GetString(KeyAllowedLocations)),
		},
		RBAC: RBACConfig{
			CatalogRole:       v.GetString(KeyCatalogRole),
			Privilege:         v.GetString(KeyCatalogPrivilege),
			CreateCatalogRole: v.GetBool(KeyCreateCatalogRole),
			PrincipalRole:     v.GetString(KeyPrincipalRole),
			Principal:         v.GetString(KeyPrincipal),
		},
		Probe: ProbeConfig{
			Attempts: v.GetInt(KeyProbeAttempts),
			Interval: v.GetDuration(KeyProbeInterval),
			Timeout:  v.GetDuration(KeyProbeTimeout),
		},
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
		Timeout:         v.GetDuration(KeyTimeout),
		SecretNamespace: v.GetString(KeySecretNamespace),
	}
}

// SplitList splits a comma-separated list, trimming blanks and dropping
// empty entries.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate reports the first configuration problem that would make the
// bootstrap sequence fail before talking to the service.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || c.ServerURL == "" {
		return fmt.Errorf("%s must be a valid URL, got %q", KeyURL, c.ServerURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", KeyURL, c.ServerURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host: %q", KeyURL, c.ServerURL)
	}

	required := []struct{ key, value string }{
		{KeyClientID, c.ClientID},
		{KeyCatalog, c.Catalog.Name},
		{KeyDefaultBaseLocation, c.Catalog.DefaultBaseLocation},
		{KeyCatalogRole, c.RBAC.CatalogRole},
		{KeyCatalogPrivilege, c.RBAC.Privilege},
		{KeyPrincipalRole, c.RBAC.PrincipalRole},
		{KeyPrincipal, c.RBAC.Principal},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s must not be empty", r.key)
		}
	}

	if len(c.Catalog.AllowedLocations) == 0 {
		return fmt.Errorf("%s must list at least one location", KeyAllowedLocations)
	}
	if c.Probe.Attempts < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyProbeAttempts, c.Probe.Attempts)
	}
	if c.Probe.Interval < 0 {
		return fmt.Errorf("%s must not be negative", KeyProbeInterval)
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", KeyProbeTimeout)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", KeyTimeout)
	}
	return nil
}

// SecretFields returns pointers to the values that may hold secret://
// references, keyed by their environment variable name.
func (c *Config) SecretFields() map[string]*string {
	return map[string]*string{
		KeyClientSecret: &c.ClientSecret,
		KeyS3AccessKey:  &c.Catalog.S3AccessKey,
		KeyS3SecretKey:  &c.Catalog.S3SecretKey,
	}
}

// HasSecretRefs reports whether any secret field is a secret:// reference.
func (c *Config) HasSecretRefs() bool {
	for _, f := range c.SecretFields() {
		if secretref.IsRef(*f) {
			return true
		}
	}
	return false
}

// Redacted returns the effective configuration keyed by environment
// variable name, with sensitive values masked.
func (c *Config) Redacted() map[string]string {
	out := redact.Strings(map[string]string{
		KeyURL:                 c.ServerURL,
		KeyClientID:            c.ClientID,
		KeyClientSecret:        c.ClientSecret,
		KeyScope:               c.Scope,
		KeyCatalog:             c.Catalog.Name,
		KeyS3Endpoint:          c.Catalog.S3Endpoint,
		KeyS3Region:            c.Catalog.S3Region,
		KeyS3AccessKey:         c.Catalog.S3AccessKey,
		KeyS3SecretKey:         c.Catalog.S3SecretKey,
		KeyS3PathStyleAccess:   strconv.FormatBool(c.Catalog.S3PathStyleAccess),
		KeyDefaultBaseLocation: c.Catalog.DefaultBaseLocation,
		KeyRoleARN:             c.Catalog.RoleARN,
		KeyAllowedLocations:    strings.Join(c.Catalog.AllowedLocations, ","),
		KeyCatalogRole:         c.RBAC.CatalogRole,
		KeyCatalogPrivilege:    c.RBAC.Privilege,
		KeyCreateCatalogRole:   strconv.FormatBool(c.RBAC.CreateCatalogRole),
		KeyPrincipalRole:       c.RBAC.PrincipalRole,
		KeyPrincipal:           c.RBAC.Principal,
		KeyTimeout:             c.Timeout.String(),
		KeyProbeAttempts:       strconv.Itoa(c.Probe.Attempts),
		KeyProbeInterval:       c.Probe.Interval.String(),
		KeyProbeTimeout:        c.Probe.Timeout.String(),
		KeyLogLevel:            c.Log.Level,
		KeyLogFormat:           c.Log.Format,
	})
	// The namespace name matches the "secret" pattern but is not sensitive.
	out[KeySecretNamespace] = c.SecretNamespace
	return out
}
