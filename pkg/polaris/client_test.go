package polaris

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

// recordingServer answers every request with status and body and keeps a
// log of what it received.
func recordingServer(t *testing.T, status int, body string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var (
		mu  sync.Mutex
		log []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		rec := recordedRequest{Method: r.Method, Path: r.URL.EscapedPath(), Auth: r.Header.Get("Authorization")}
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		log = append(log, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &log
}

func TestStatusError_Error(t *testing.T) {
	err := &StatusError{Method: "PUT", URL: "http://polaris/x", StatusCode: 500, Body: "boom"}
	assert.Equal(t, "PUT http://polaris/x -> 500\nboom", err.Error())
}

func TestWithTokenDoesNotMutate(t *testing.T) {
	c := NewClient("http://polaris/")
	authed := c.WithToken("abc")

	assert.Equal(t, "", c.token)
	assert.Equal(t, "abc", authed.token)
	assert.Equal(t, "http://polaris", authed.BaseURL())
}

func TestManagementPath(t *testing.T) {
	assert.Equal(t, "/api/management/v1/catalogs", managementPath("catalogs"))
	assert.Equal(t,
		"/api/management/v1/principals/svc%2Fbot/principal-roles",
		managementPath("principals", "svc/bot", "principal-roles"))
}

func TestEnsure_StatusHandling(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantErr     bool
		wantExisted bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "created", status: http.StatusCreated},
		{name: "no content", status: http.StatusNoContent},
		{name: "conflict tolerated", status: http.StatusConflict, wantExisted: true},
		{name: "bad request", status: http.StatusBadRequest, wantErr: true},
		{name: "forbidden", status: http.StatusForbidden, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := recordingServer(t, tt.status, `{"message":"m"}`)
			c := NewClient(srv.URL, WithHTTPClient(srv.Client())).WithToken("tok")

			out, err := c.CreatePrincipalRole(context.Background(), "data_engineer")
			if tt.wantErr {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, tt.status, statusErr.StatusCode)
				assert.Equal(t, http.MethodPost, statusErr.Method)
				assert.Equal(t, srv.URL+"/api/management/v1/principal-roles", statusErr.URL)
				assert.Equal(t, `{"message":"m"}`, statusErr.Body)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, out.StatusCode)
			assert.Equal(t, tt.wantExisted, out.AlreadyExisted())
		})
	}
}

func TestCreateCatalog_Payload(t *testing.T) {
	srv, log := recordingServer(t, http.StatusCreated, "")
	c := NewClient(srv.URL, WithHTTPClient(srv.Client())).WithToken("tok")

	catalog := Catalog{
		Name: "polariscatalog",
		Type: CatalogTypeInternal,
		Properties: map[string]string{
			PropDefaultBaseLocation: "s3://warehouse",
			PropS3Endpoint:          "http://minio:9000",
		},
		StorageConfigInfo: StorageConfigInfo{
			StorageType:      StorageTypeS3,
			AllowedLocations: []string{"s3://warehouse/*"},
			RoleARN:          "arn:aws:iam::000000000000:role/minio-polaris-role",
		},
	}
	out, err := c.CreateCatalog(context.Background(), catalog)
	require.NoError(t, err)
	assert.False(t, out.AlreadyExisted())

	require.Len(t, *log, 1)
	req := (*log)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/management/v1/catalogs", req.Path)
	assert.Equal(t, "Bearer tok", req.Auth)

	body := req.Body["catalog"].(map[string]any)
	assert.Equal(t, "polariscatalog", body["name"])
	assert.Equal(t, "INTERNAL", body["type"])
	storage := body["storageConfigInfo"].(map[string]any)
	assert.Equal(t, "S3", storage["storageType"])
	assert.Equal(t, []any{"s3://warehouse/*"}, storage["allowedLocations"])
}

func TestRBACCalls_PathsAndBodies(t *testing.T) {
	ctx := context.Background()
	srv, log := recordingServer(t, http.StatusCreated, "")
	c := NewClient(srv.URL, WithHTTPClient(srv.Client())).WithToken("tok")

	_, err := c.CreateCatalogRole(ctx, "cat", "catalog_admin")
	require.NoError(t, err)
	_, err = c.GrantCatalogPrivilege(ctx, "cat", "catalog_admin", PrivilegeCatalogManageContent)
	require.NoError(t, err)
	_, err = c.CreatePrincipalRole(ctx, "data_engineer")
	require.NoError(t, err)
	_, err = c.AssignCatalogRole(ctx, "data_engineer", "cat", "catalog_admin")
	require.NoError(t, err)
	_, err = c.AssignPrincipalRole(ctx, "root", "data_engineer")
	require.NoError(t, err)

	want := []struct {
		method string
		path   string
		body   map[string]any
	}{
		{"POST", "/api/management/v1/catalogs/cat/catalog-roles",
			map[string]any{"catalogRole": map[string]any{"name": "catalog_admin"}}},
		{"PUT", "/api/management/v1/catalogs/cat/catalog-roles/catalog_admin/grants",
			map[string]any{"grant": map[string]any{"type": "catalog", "privilege": "CATALOG_MANAGE_CONTENT"}}},
		{"POST", "/api/management/v1/principal-roles",
			map[string]any{"principalRole": map[string]any{"name": "data_engineer"}}},
		{"PUT", "/api/management/v1/principal-roles/data_engineer/catalog-roles/cat",
			map[string]any{"catalogRole": map[string]any{"name": "catalog_admin"}}},
		{"PUT", "/api/management/v1/principals/root/principal-roles",
			map[string]any{"principalRole": map[string]any{"name": "data_engineer"}}},
	}

	require.Len(t, *log, len(want))
	for i, w := range want {
		got := (*log)[i]
		assert.Equal(t, w.method, got.Method, "call %d", i)
		assert.Equal(t, w.path, got.Path, "call %d", i)
		assert.Equal(t, w.body, got.Body, "call %d", i)
		assert.Equal(t, "Bearer tok", got.Auth, "call %d", i)
	}
}

func TestListCatalogs(t *testing.T) {
	t.Run("json document", func(t *testing.T) {
		srv, _ := recordingServer(t, http.StatusOK, `{"catalogs":[{"name":"a"}]}`)
		c := NewClient(srv.URL, WithHTTPClient(srv.Client()))

		doc, err := c.ListCatalogs(context.Background())
		require.NoError(t, err)
		assert.Len(t, doc["catalogs"], 1)
	})

	t.Run("non-json body is kept raw", func(t *testing.T) {
		srv, _ := recordingServer(t, http.StatusOK, "not json\n")
		c := NewClient(srv.URL, WithHTTPClient(srv.Client()))

		doc, err := c.ListCatalogs(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"raw": "not json"}, doc)
	})

	t.Run("json array is kept decoded", func(t *testing.T) {
		srv, _ := recordingServer(t, http.StatusOK, `[{"name":"a"}]`)
		c := NewClient(srv.URL, WithHTTPClient(srv.Client()))

		doc, err := c.ListCatalogs(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{ListItemsKey: []any{map[string]any{"name": "a"}}}, doc)
	})

	t.Run("json null", func(t *testing.T) {
		srv, _ := recordingServer(t, http.StatusOK, "null")
		c := NewClient(srv.URL, WithHTTPClient(srv.Client()))

		doc, err := c.ListCatalogs(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{}, doc)
	})

	t.Run("empty body", func(t *testing.T) {
		srv, _ := recordingServer(t, http.StatusOK, "")
		c := NewClient(srv.URL, WithHTTPClient(srv.Client()))

		doc, err := c.ListCatalogs(context.Background())
		require.NoError(t, err)
		assert.Empty(t, doc)
	})

	t.Run("conflict is not tolerated for listings", func(t *testing.T) {
		srv, _ := recordingServer(t, http.StatusConflict, "")
		c := NewClient(srv.URL, WithHTTPClient(srv.Client()))

		_, err := c.ListPrincipalRoles(context.Background(), "root")
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusConflict, statusErr.StatusCode)
		assert.Equal(t, http.MethodGet, statusErr.Method)
	})
}

func TestWithTimeout(t *testing.T) {
	t.Run("does not modify a supplied client", func(t *testing.T) {
		shared := &http.Client{Timeout: time.Minute}
		c := NewClient("http://polaris", WithHTTPClient(shared), WithTimeout(3*time.Second))

		assert.Equal(t, time.Minute, shared.Timeout)
		assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
		assert.NotSame(t, shared, c.httpClient)
	})

	t.Run("order of options does not matter", func(t *testing.T) {
		shared := &http.Client{}
		c := NewClient("http://polaris", WithTimeout(3*time.Second), WithHTTPClient(shared))

		assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
		assert.Zero(t, shared.Timeout)
	})

	t.Run("default", func(t *testing.T) {
		assert.Equal(t, DefaultTimeout, NewClient("http://polaris").httpClient.Timeout)
	})
}

func TestDo_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url)
	_, err := c.CreatePrincipalRole(context.Background(), "r")
	require.Error(t, err)

	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
	assert.Contains(t, err.Error(), "POST "+url)
}
