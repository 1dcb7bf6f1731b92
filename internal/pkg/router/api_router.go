package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/notemarket/notemarket/internal/pkg/middleware"
	"github.com/notemarket/notemarket/internal/pkg/ratelimit"
)

const WebhookPath = "/api/v1/payments/webhook"

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// The gateway push is authenticated by signature and exempt from the
	// general limiter.
	api := app.Group("/api", ratelimit.GeneralMiddleware(h.deps.GeneralStorage, func(c *fiber.Ctx) bool {
		return c.Path() == WebhookPath
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	payments := v1.Group("/payments")
	payments.Post("/webhook", h.deps.Payments.HandleGatewayWebhook)
	payments.Post("/verify",
		middleware.APIKeyAuthMiddleware(h.deps.Users),
		middleware.RequireAuth,
		ratelimit.Middleware(h.deps.Sensitive),
		h.deps.Payments.HandleVerifyPayment,
	)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
