package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakehouse-tools/polaris-bootstrap/internal/polarisfake"
	"github.com/lakehouse-tools/polaris-bootstrap/pkg/config"
	"github.com/lakehouse-tools/polaris-bootstrap/pkg/polaris"
)

// logCapture collects formatted log lines.
type logCapture struct {
	mu    sync.Mutex
	lines []string
}

func (l *logCapture) logger() logr.Logger {
	return funcr.New(func(prefix, args string) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.lines = append(l.lines, args)
	}, funcr.Options{})
}

func (l *logCapture) count(substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

// reportCapture records reported sections in order.
type reportCapture struct {
	sections []string
	docs     map[string]map[string]any
}

func (r *reportCapture) Report(section string, doc map[string]any) error {
	if r.docs == nil {
		r.docs = map[string]map[string]any{}
	}
	r.sections = append(r.sections, section)
	r.docs[section] = doc
	return nil
}

type harness struct {
	fake    *polarisfake.Server
	cfg     *config.Config
	client  *polaris.Client
	logs    *logCapture
	reports *reportCapture
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := polarisfake.New()
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	cfg := config.Load(config.NewViper())
	cfg.ServerURL = srv.URL
	cfg.Probe = config.ProbeConfig{Attempts: 3, Interval: time.Millisecond, Timeout: time.Second}

	return &harness{
		fake:    fake,
		cfg:     cfg,
		client:  polaris.NewClient(srv.URL, polaris.WithHTTPClient(srv.Client())),
		logs:    &logCapture{},
		reports: &reportCapture{},
	}
}

func (h *harness) runner() *Runner {
	return NewRunner(h.cfg, h.client, h.logs.logger(), h.reports)
}

func TestRun_FreshService(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.runner().Run(context.Background()))

	assert.Equal(t, 1, h.fake.Calls(polarisfake.RouteCreateCatalog), "catalog is created exactly once")
	assert.Equal(t, 0, h.fake.Calls(polarisfake.RouteCreateCatalogRole))
	assert.Equal(t, 0, h.logs.count(`"alreadyExisted"=true`))
	assert.Equal(t, 1, h.logs.count(`"msg"="catalog ensured"`))

	st := h.fake.Snapshot()
	assert.Equal(t, []string{"polariscatalog"}, st.Catalogs)
	assert.Equal(t, []string{"polariscatalog/catalog_admin/CATALOG_MANAGE_CONTENT"}, st.Grants)
	assert.Equal(t, []string{"data_engineer"}, st.PrincipalRoles)
	assert.Equal(t, []string{"data_engineer/polariscatalog/catalog_admin"}, st.CatalogRoleBindings)
	assert.Equal(t, []string{"data_engineer"}, st.PrincipalAssignments["root"])

	stored, ok := h.fake.Catalog("polariscatalog")
	require.True(t, ok)
	assert.Equal(t, "s3://warehouse", stored.Properties[polaris.PropDefaultBaseLocation])
	assert.Equal(t, "true", stored.Properties[polaris.PropS3PathStyleAccess])
	assert.Equal(t, []string{"s3://warehouse/*"}, stored.StorageConfigInfo.AllowedLocations)

	assert.Equal(t, []string{SectionCatalogs, SectionPrincipalRoles}, h.reports.sections)
	assert.Equal(t, []string{"polariscatalog"}, Names(h.reports.docs[SectionCatalogs], "catalogs"))
	assert.Equal(t, []string{"data_engineer"}, Names(h.reports.docs[SectionPrincipalRoles], "roles"))
}

func TestRun_TwiceIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.runner().Run(ctx))
	first := h.fake.Snapshot()

	second := &logCapture{}
	h.logs = second
	h.fake.ResetCalls()
	require.NoError(t, h.runner().Run(ctx))

	assert.Equal(t, first, h.fake.Snapshot())
	assert.Equal(t, 1, h.fake.Calls(polarisfake.RouteCreateCatalog))
	assert.Equal(t, 1, h.fake.Calls(polarisfake.RouteGrant))
	assert.Equal(t, 1, h.fake.Calls(polarisfake.RouteAssignPrincipalRole))
	// catalog, grant, principal role, connection, assignment
	assert.Equal(t, 5, second.count(`"alreadyExisted"=true`))
	assert.Equal(t, 0, second.count(`"alreadyExisted"=false`))
}

func TestRun_CatalogAlreadyExists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c, err := h.runner().Authenticate(ctx)
	require.NoError(t, err)
	_, err = c.CreateCatalog(ctx, CatalogFromConfig(h.cfg.Catalog))
	require.NoError(t, err)

	require.NoError(t, h.runner().Run(ctx))
	assert.Equal(t, 1, h.logs.count(`"msg"="catalog ensured" "catalog"="polariscatalog" "status"=409 "alreadyExisted"=true`))
	assert.Equal(t, 2, h.fake.Calls(polarisfake.RouteCreateCatalog))
}

func TestRun_TokenWithoutAccessToken(t *testing.T) {
	h := newHarness(t)
	h.fake.SetOmitAccessToken(true)

	err := h.runner().Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_token")
	assert.Equal(t, 0, h.fake.Calls(polarisfake.RouteCreateCatalog))
}

func TestRun_ServiceNeverUp(t *testing.T) {
	h := newHarness(t)
	h.fake.SetProbeStatus(http.StatusServiceUnavailable)

	err := h.runner().Run(context.Background())
	require.ErrorIs(t, err, polaris.ErrServiceUnavailable)
	assert.Equal(t, h.cfg.Probe.Attempts, h.fake.Calls(polarisfake.RouteProbe))
	assert.Equal(t, 0, h.fake.Calls(polarisfake.RouteToken))
}

func TestRun_GrantFailureHaltsSequence(t *testing.T) {
	h := newHarness(t)
	h.fake.FailRoute(polarisfake.RouteGrant, http.StatusInternalServerError)

	err := h.runner().Run(context.Background())

	var statusErr *polaris.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, http.MethodPut, statusErr.Method)
	assert.Contains(t, err.Error(), "granting CATALOG_MANAGE_CONTENT")

	assert.Equal(t, 1, h.fake.Calls(polarisfake.RouteGrant))
	assert.Equal(t, 0, h.fake.Calls(polarisfake.RouteCreatePrincipalRole))
	assert.Equal(t, 0, h.fake.Calls(polarisfake.RouteAssignCatalogRole))
	assert.Equal(t, 0, h.fake.Calls(polarisfake.RouteAssignPrincipalRole))
	assert.Equal(t, 0, h.fake.Calls(polarisfake.RouteListPrincipalRoles))
	assert.Equal(t, []string{SectionCatalogs}, h.reports.sections)
}

func TestRun_CreatesCustomCatalogRole(t *testing.T) {
	h := newHarness(t)
	h.cfg.RBAC.CreateCatalogRole = true
	h.cfg.RBAC.CatalogRole = "content_manager"

	require.NoError(t, h.runner().Run(context.Background()))

	st := h.fake.Snapshot()
	assert.Equal(t, []string{"catalog_admin", "content_manager"}, st.CatalogRoles["polariscatalog"])
	assert.Equal(t, []string{"polariscatalog/content_manager/CATALOG_MANAGE_CONTENT"}, st.Grants)
	assert.Equal(t, []string{"data_engineer/polariscatalog/content_manager"}, st.CatalogRoleBindings)
}

func TestRun_UnknownCatalogRoleWithoutCreation(t *testing.T) {
	h := newHarness(t)
	h.cfg.RBAC.CatalogRole = "content_manager"

	err := h.runner().Run(context.Background())

	var statusErr *polaris.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestReport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.runner().Run(ctx))

	reports := &reportCapture{}
	r := NewRunner(h.cfg, h.client, logr.Discard(), reports)
	require.NoError(t, r.Report(ctx))

	assert.Equal(t, []string{SectionCatalogs, SectionPrincipalRoles}, reports.sections)
	catalogs := reports.docs[SectionCatalogs]["catalogs"].([]any)
	props := catalogs[0].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, "***REDACTED***", props[polaris.PropS3SecretAccessKey])
	assert.Equal(t, "***REDACTED***", props[polaris.PropS3AccessKeyID])
	assert.Equal(t, "http://minio:9000", props[polaris.PropS3Endpoint])
}

func TestRedactCatalogs_PassesThroughUnknownShapes(t *testing.T) {
	doc := map[string]any{"raw": "oops"}
	assert.Equal(t, doc, RedactCatalogs(doc))
}

func TestNames(t *testing.T) {
	doc := map[string]any{
		"roles": []any{
			map[string]any{"name": "a"},
			"junk",
			map[string]any{"other": "x"},
			map[string]any{"name": "b"},
		},
	}
	assert.Equal(t, []string{"a", "b"}, Names(doc, "roles"))
	assert.Nil(t, Names(doc, "missing"))
}
