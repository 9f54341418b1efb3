package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakehouse-tools/polaris-bootstrap/internal/polarisfake"
)

func TestRouterLogsRequests(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	logger := funcr.New(func(prefix, args string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, prefix+" "+args)
	}, funcr.Options{})

	srv := httptest.NewServer(newRouter(polarisfake.New(), logger))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/management/v1/catalogs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "http "))
	assert.Contains(t, lines[0], `"msg"="request served"`)
	assert.Contains(t, lines[0], `"method"="GET" "path"="/"`)
	assert.Contains(t, lines[0], `"status"=200`)
	assert.Contains(t, lines[1], `"path"="/api/management/v1/catalogs"`)
	assert.Contains(t, lines[1], `"status"=401`)
	assert.NotContains(t, lines[0], `"requestID"=""`)
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("MOCK_POLARIS_TEST_KEY", "")
	assert.Equal(t, "fallback", envOrDefault("MOCK_POLARIS_TEST_KEY", "fallback"))
	t.Setenv("MOCK_POLARIS_TEST_KEY", "set")
	assert.Equal(t, "set", envOrDefault("MOCK_POLARIS_TEST_KEY", "fallback"))
}
