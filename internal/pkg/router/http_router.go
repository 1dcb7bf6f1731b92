package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HttpRouter serves operational endpoints outside the versioned API.
type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", h.deps.Health.HandleHealth)
	app.Get("/health/alerts", h.deps.Health.HandleAlertStats)
	app.Get("/health/alerts/dead-letters", h.deps.Health.HandleDeadLetters)

	if len(h.deps.MetricsUsers) == 0 {
		log.Warn("[Router] METRICS_USER/METRICS_PASSWORD not set, /metrics disabled")
		return
	}
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: h.deps.MetricsUsers,
	}), adaptor.HTTPHandler(promhttp.Handler()))
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
