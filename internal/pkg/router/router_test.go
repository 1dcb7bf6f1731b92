package router

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notemarket/notemarket/app/controllers"
	"github.com/notemarket/notemarket/app/models"
	"github.com/notemarket/notemarket/app/repository"
	"github.com/notemarket/notemarket/internal/pkg/alert"
	"github.com/notemarket/notemarket/internal/pkg/database"
	"github.com/notemarket/notemarket/internal/pkg/ratelimit"
	"github.com/notemarket/notemarket/internal/pkg/settlement"
)

func newTestApp(t *testing.T, metricsUsers map[string]string) *fiber.App {
	t.Helper()
	db, err := database.OpenSQLite(t.Name())
	require.NoError(t, err)

	users := repository.NewUserRepository(db)
	require.NoError(t, users.Create(&models.User{Name: "buyer", Status: models.STATUS_ACTIVE, APIKeyHash: models.HashAPIKey("buyer-key")}))

	alerts := alert.NewDispatcher(alert.Config{}, nil)
	svc, err := settlement.NewServiceFromDB(settlement.Config{WebhookSecret: "whsec"}, db, alerts)
	require.NoError(t, err)

	app := fiber.New()
	InstallRouter(app, Dependencies{
		Payments:     controllers.NewPaymentController(svc),
		Health:       controllers.NewHealthController(db, alerts, nil),
		Users:        users,
		Sensitive:    ratelimit.NewSensitiveLimiter(ratelimit.NewMemoryStore(), alerts),
		MetricsUsers: metricsUsers,
	})
	return app
}

func verifyRequest(apiKey string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/verify",
		bytes.NewBufferString(`{"order_id":"order_1","payment_id":"pay_1","signature":"00"}`))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	return req
}

func TestVerifyRoute_RequiresAPIKey(t *testing.T) {
	app := newTestApp(t, nil)

	resp, err := app.Test(verifyRequest(""))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestVerifyRoute_SensitiveLimiterPerUser(t *testing.T) {
	app := newTestApp(t, nil)

	for i := 0; i < 10; i++ {
		resp, err := app.Test(verifyRequest("buyer-key"))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "request %d", i+1)
	}

	resp, err := app.Test(verifyRequest("buyer-key"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "300", resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestWebhookRoute_NotGenerallyLimited(t *testing.T) {
	app := newTestApp(t, nil)

	for i := 0; i < int(ratelimit.GeneralMax)+5; i++ {
		req := httptest.NewRequest(http.MethodPost, WebhookPath, bytes.NewBufferString(`{}`))
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "request %d", i+1)
	}
}

func TestHealthRoutes(t *testing.T) {
	app := newTestApp(t, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health/alerts", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health/alerts/dead-letters?limit=5", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	t.Run("disabled without credentials", func(t *testing.T) {
		app := newTestApp(t, nil)
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("basic auth", func(t *testing.T) {
		app := newTestApp(t, map[string]string{"ops": "secret"})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("ops:secret")))
		resp, err = app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}
