package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notemarket/notemarket/app/models"
	"github.com/notemarket/notemarket/internal/pkg/alert"
	"github.com/notemarket/notemarket/internal/pkg/database"
)

type stubAlertStats struct {
	stats     *alert.Stats
	dead      []models.AlertRecord
	err       error
	lastLimit *int
}

func (s stubAlertStats) Stats(context.Context) (*alert.Stats, error) {
	return s.stats, s.err
}

func (s stubAlertStats) DeadLetters(_ context.Context, limit int) ([]models.AlertRecord, error) {
	if s.lastLimit != nil {
		*s.lastLimit = limit
	}
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.dead) {
		return s.dead[:limit], nil
	}
	return s.dead, nil
}

func TestHealthEndpoints(t *testing.T) {
	db, err := database.OpenSQLite(t.Name())
	require.NoError(t, err)

	hc := NewHealthController(db, stubAlertStats{stats: &alert.Stats{Delivered: 4, Failed: 1, AverageAttempts: 1.4}}, func() string { return "up" })
	app := fiber.New()
	app.Get("/health", hc.HandleHealth)
	app.Get("/health/alerts", hc.HandleAlertStats)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "up", body["database"])
	assert.Equal(t, "up", body["cache"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health/alerts", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, float64(4), body["delivered"])
	assert.Equal(t, float64(1), body["failed"])
	assert.InDelta(t, 1.4, body["average_attempts"], 0.0001)
}

func TestHealthEndpoints_Failures(t *testing.T) {
	hc := NewHealthController(nil, stubAlertStats{err: errors.New("db gone")}, nil)
	app := fiber.New()
	app.Get("/health", hc.HandleHealth)
	app.Get("/health/alerts", hc.HandleAlertStats)
	app.Get("/health/alerts/dead-letters", hc.HandleDeadLetters)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "down", body["database"])
	assert.Equal(t, "disabled", body["cache"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health/alerts", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health/alerts/dead-letters", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandleDeadLetters(t *testing.T) {
	var limit int
	stub := stubAlertStats{
		dead: []models.AlertRecord{
			{ID: 3, Event: "settlement_failed", Severity: "CRITICAL", Status: models.AlertStatusFailed, AttemptCount: 3},
			{ID: 2, Event: "order_mismatch", Severity: "HIGH", Status: models.AlertStatusFailed, AttemptCount: 3},
		},
		lastLimit: &limit,
	}
	hc := NewHealthController(nil, stub, nil)
	app := fiber.New()
	app.Get("/health/alerts/dead-letters", hc.HandleDeadLetters)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/alerts/dead-letters", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, defaultDeadLetterLimit, limit)
	first := body["alerts"].([]any)[0].(map[string]any)
	assert.Equal(t, "settlement_failed", first["event"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health/alerts/dead-letters?limit=1", nil))
	require.NoError(t, err)
	assert.Equal(t, float64(1), decodeBody(t, resp)["count"])
	assert.Equal(t, 1, limit)

	_, err = app.Test(httptest.NewRequest(http.MethodGet, "/health/alerts/dead-letters?limit=5000", nil))
	require.NoError(t, err)
	assert.Equal(t, maxDeadLetterLimit, limit)
}

func TestHandleDeadLetters_EmptyQueue(t *testing.T) {
	hc := NewHealthController(nil, stubAlertStats{}, nil)
	app := fiber.New()
	app.Get("/health/alerts/dead-letters", hc.HandleDeadLetters)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/alerts/dead-letters", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(0), body["count"])
	assert.Equal(t, []any{}, body["alerts"])
}
