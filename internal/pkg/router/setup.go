package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/notemarket/notemarket/app/controllers"
	"github.com/notemarket/notemarket/app/repository"
	"github.com/notemarket/notemarket/internal/pkg/ratelimit"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies carries the wired services the routes need.
type Dependencies struct {
	Payments  *controllers.PaymentController
	Health    *controllers.HealthController
	Users     repository.UserRepository
	Sensitive *ratelimit.Limiter
	// GeneralStorage backs the general limiter; nil keeps counters in memory.
	GeneralStorage fiber.Storage
	// MetricsUsers enables basic auth protected /metrics when not empty.
	MetricsUsers map[string]string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
