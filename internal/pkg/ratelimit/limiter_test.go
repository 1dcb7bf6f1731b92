package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notemarket/notemarket/internal/pkg/alert"
	"github.com/notemarket/notemarket/internal/pkg/usercontext"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (r *recordingNotifier) Notify(severity alert.Severity, event, message string, metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert.Alert{Severity: severity, Event: event, Message: message, Metadata: metadata})
}

func (r *recordingNotifier) all() []alert.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alert.Alert(nil), r.alerts...)
}

func TestLimiter_EleventhUserCallDenied(t *testing.T) {
	store, clock := newClockedMemoryStore()
	notifier := &recordingNotifier{}
	l := NewSensitiveLimiter(store, notifier)
	keys := Keys{User: "42", IP: "10.0.0.1", Path: "/api/v1/payments/verify"}
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		d, err := l.Admit(ctx, keys)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "call %d", i)
		assert.NoError(t, d.Err())
	}
	assert.Empty(t, notifier.all())

	d, err := l.Admit(ctx, keys)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, LayerUser, d.Layer)
	assert.Equal(t, 300*time.Second, d.RetryAfter)
	assert.Equal(t, int64(300), RetryAfterSeconds(d))
	assert.ErrorIs(t, d.Err(), ErrQuotaExceeded)

	alerts := notifier.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, "rate_limit_exceeded", alerts[0].Event)
	assert.Equal(t, alert.SeverityWarning, alerts[0].Severity)
	assert.Equal(t, "/api/v1/payments/verify", alerts[0].Metadata["path"])
	assert.Equal(t, "42", alerts[0].Metadata["user"])
	assert.Equal(t, "10.0.0.1", alerts[0].Metadata["ip"])
	assert.Equal(t, "user", alerts[0].Metadata["layer"])

	// Another user from the same address is unaffected.
	d, err = l.Admit(ctx, Keys{User: "43", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	clock.Advance(300 * time.Second)
	d, err = l.Admit(ctx, keys)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_LongestBlockWins(t *testing.T) {
	store, _ := newClockedMemoryStore()
	l := NewLimiter("test", store, nil,
		Rule{Layer: LayerUser, Points: 1, Window: time.Minute, Block: 30 * time.Second},
		Rule{Layer: LayerIP, Points: 1, Window: time.Minute, Block: 90 * time.Second},
	)
	keys := Keys{User: "1", IP: "1.1.1.1"}

	d, err := l.Admit(context.Background(), keys)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = l.Admit(context.Background(), keys)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, LayerIP, d.Layer)
	assert.Equal(t, 90*time.Second, d.RetryAfter)
}

func TestLimiter_SkipsLayersWithoutKey(t *testing.T) {
	store, _ := newClockedMemoryStore()
	l := NewLimiter("test", store, nil,
		Rule{Layer: LayerUser, Points: 1, Window: time.Minute},
		Rule{Layer: LayerIP, Points: 100, Window: time.Minute},
	)

	for i := 0; i < 5; i++ {
		d, err := l.Admit(context.Background(), Keys{IP: "2.2.2.2"})
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func TestLimiter_StoreErrorSurfaces(t *testing.T) {
	l := NewLimiter("test", brokenStore{}, nil, SensitiveRules...)
	_, err := l.Admit(context.Background(), Keys{User: "1", IP: "1.1.1.1"})
	assert.Error(t, err)
}

func TestMiddleware_Returns429WithRetryAfter(t *testing.T) {
	store, _ := newClockedMemoryStore()
	l := NewLimiter("test", store, nil, Rule{Layer: LayerUser, Points: 2, Window: time.Minute, Block: 45 * time.Second})

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		usercontext.Set(c, usercontext.UserContext{UserID: 7, IsAuthenticated: true})
		return c.Next()
	})
	app.Post("/verify", Middleware(l), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/verify", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/verify", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "45", resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestGeneralMiddleware_InMemory(t *testing.T) {
	app := fiber.New()
	app.Use(GeneralMiddleware(nil, func(c *fiber.Ctx) bool { return c.Path() == "/skip" }))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/skip", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for i := 0; i < GeneralMax; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get(fiber.HeaderRetryAfter))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/skip", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
