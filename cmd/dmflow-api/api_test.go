package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/dmflow/pkg/metrics"
	"github.com/dukex/dmflow/pkg/mocks"
	"github.com/dukex/dmflow/pkg/persistence/file"
	"github.com/dukex/dmflow/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	api := NewAPI(
		slog.Default(),
		file.NewPersistence(t.TempDir()),
		&mocks.MockAutomation{},
		metrics.New(),
		web.Config{VerifyToken: "token"},
	)

	return api.App()
}

func get(t *testing.T, app *fiber.App, target string, headers map[string]string) (int, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	t.Parallel()

	status, body := get(t, setupTestApp(t), "/", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "dmflow API", body)
}

func TestAPI_HealthCheck(t *testing.T) {
	t.Parallel()

	status, body := get(t, setupTestApp(t), "/livez", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)
}

func TestAPI_GetFlows_Empty(t *testing.T) {
	t.Parallel()

	status, body := get(t, setupTestApp(t), "/flows", map[string]string{web.WorkspaceHeader: "ws-1"})
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"flows": [], "total_count": 0}`, body)
}

func TestAPI_WebhookVerification(t *testing.T) {
	t.Parallel()

	status, body := get(t, setupTestApp(t), "/webhooks/instagram?hub.mode=subscribe&hub.verify_token=token&hub.challenge=abc", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "abc", body)
}
