package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falconlabs/falcon/pkg/metrics"
)

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := f.decode(rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "Falcon", body["app"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, float64(3), body["active_jobs"])

	// The root alias answers identically.
	root := f.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, root.Code)
	assert.Equal(t, rec.Body.String(), root.Body.String())
}

func TestHealthRejectsOtherMethods(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReadyEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := f.decode(rec)
	assert.Equal(t, "ready", body["status"])
	checks, ok := body["checks"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", checks["wiki_store"])
	assert.Equal(t, "ok", checks["repo_store"])
}

func TestReadyReportsStoreFailure(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.repoStore.Close())

	rec := f.do(http.MethodGet, "/api/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := f.decode(rec)
	assert.Equal(t, "not ready", body["status"])
	checks, ok := body["checks"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", checks["wiki_store"])
	assert.NotEqual(t, "ok", checks["repo_store"])
}

func TestRootReadyProbeTracksComponentRegistry(t *testing.T) {
	f := newAPIFixture(t)

	// Nothing registered yet: deploy tooling must not route traffic here.
	rec := f.do(http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := f.decode(rec)
	assert.Equal(t, "not_ready", body["status"])
	components, ok := body["components"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "not registered", components["wiki_store"])

	metrics.RegisterComponent("wiki_store", true, "")
	metrics.RegisterComponent("repo_store", true, "")
	metrics.RegisterComponent("orchestrator", true, "")

	rec = f.do(http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", f.decode(rec)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "falcon_active_jobs")
}
