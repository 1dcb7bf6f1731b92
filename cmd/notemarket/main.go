package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/notemarket/notemarket/app/controllers"
	"github.com/notemarket/notemarket/app/repository"
	"github.com/notemarket/notemarket/internal/pkg/alert"
	"github.com/notemarket/notemarket/internal/pkg/cache"
	"github.com/notemarket/notemarket/internal/pkg/database"
	"github.com/notemarket/notemarket/internal/pkg/env"
	"github.com/notemarket/notemarket/internal/pkg/jobqueue"
	"github.com/notemarket/notemarket/internal/pkg/notify"
	"github.com/notemarket/notemarket/internal/pkg/ratelimit"
	"github.com/notemarket/notemarket/internal/pkg/router"
	"github.com/notemarket/notemarket/internal/pkg/settlement"
)

const shutdownTimeout = 15 * time.Second

type Application struct {
	app        *fiber.App
	dispatcher *alert.Dispatcher
	jobs       *jobqueue.Manager
	relay      *notify.Relay
}

func main() {
	a := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := a.app.Listen(addr); err != nil {
			log.Fatalf("[Server] Listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Server] Shutting down")
	a.shutdown()
}

func NewApplication() *Application {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)

	dispatcher := alert.NewDispatcher(alert.ConfigFromEnv(), alert.NewRepository(db))
	dispatcher.Start()

	payments, err := settlement.NewServiceFromDB(settlement.ConfigFromEnv(), db, dispatcher)
	if err != nil {
		log.Fatalf("[Settlement] Refusing to start: %v", err)
	}

	store := ratelimit.SelectStore(cache.GetClient(), cache.Available())
	sensitive := ratelimit.NewSensitiveLimiter(store, dispatcher)

	tasks := []jobqueue.Task{jobqueue.EscrowReleaseTask(payments)}
	var relay *notify.Relay
	if brokers := env.GetEnvList("KAFKA_BROKERS"); len(brokers) > 0 {
		topic := env.GetEnv("KAFKA_NOTIFICATION_TOPIC", "notemarket.notifications")
		relay = notify.NewRelay(notify.NewRepository(db), notify.NewKafkaPublisher(brokers, topic), 0)
		tasks = append(tasks, jobqueue.NotifyRelayTask(relay))
		log.Infof("[Notify] Relaying notifications to %s on %v", topic, brokers)
	}
	jobs := jobqueue.NewManager(tasks...)
	jobs.Start()

	app := fiber.New(fiber.Config{
		BodyLimit:   1 << 20,
		ProxyHeader: env.GetEnv("APP_PROXY_HEADER", ""),
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if docsFile := findOpenAPIFile(); docsFile != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: docsFile,
			Path:     "v1",
		}))
	} else {
		log.Warn("[Server] docs/openapi.yml not found, API docs disabled")
	}

	metricsUsers := map[string]string{}
	if user, pass := env.GetEnv("METRICS_USER", ""), env.GetEnv("METRICS_PASSWORD", ""); user != "" && pass != "" {
		metricsUsers[user] = pass
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Payments:       controllers.NewPaymentController(payments),
		Health:         controllers.NewHealthController(db, dispatcher, cacheStatus),
		Users:          repository.GetGlobalFactory().GetUserRepository(),
		Sensitive:      sensitive,
		GeneralStorage: ratelimit.NewGeneralStorage(),
		MetricsUsers:   metricsUsers,
	})

	return &Application{app: app, dispatcher: dispatcher, jobs: jobs, relay: relay}
}

// shutdown stops the server before the dispatcher so late alerts are still drained.
func (a *Application) shutdown() {
	if err := a.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Errorf("[Server] Shutdown: %v", err)
	}
	a.jobs.Stop()
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			log.Errorf("[Notify] Closing publisher: %v", err)
		}
	}
	a.dispatcher.Stop()
	if err := cache.Close(); err != nil {
		log.Errorf("[Cache] Close: %v", err)
	}
	if sqlDB, err := database.GetDB().DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func cacheStatus() string {
	switch {
	case cache.GetClient() == nil:
		return "disabled"
	case !cache.Available():
		return "unreachable"
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := cache.GetClient().Ping(ctx).Err(); err != nil {
		return "down"
	}
	return "up"
}

func findOpenAPIFile() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/notemarket to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + "docs/openapi.yml"); err == nil {
			return path + "docs/openapi.yml"
		}
	}
	return ""
}
