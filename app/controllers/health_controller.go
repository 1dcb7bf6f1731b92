package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/notemarket/notemarket/app/models"
	"github.com/notemarket/notemarket/internal/pkg/alert"
)

// AlertStatsProvider exposes delivery statistics and the dead-letter queue.
type AlertStatsProvider interface {
	Stats(ctx context.Context) (*alert.Stats, error)
	DeadLetters(ctx context.Context, limit int) ([]models.AlertRecord, error)
}

const (
	defaultDeadLetterLimit = 20
	maxDeadLetterLimit     = 100
)

type HealthController struct {
	db          *gorm.DB
	alerts      AlertStatsProvider
	cacheStatus func() string
}

// NewHealthController builds the health endpoints. cacheStatus may be nil.
func NewHealthController(db *gorm.DB, alerts AlertStatsProvider, cacheStatus func() string) *HealthController {
	return &HealthController{db: db, alerts: alerts, cacheStatus: cacheStatus}
}

func (hc *HealthController) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	dbState := "up"
	if err := pingDB(ctx, hc.db); err != nil {
		log.Warnf("[Health] Database ping failed: %v", err)
		dbState = "down"
		status = fiber.StatusServiceUnavailable
	}

	cacheState := "disabled"
	if hc.cacheStatus != nil {
		cacheState = hc.cacheStatus()
	}

	overall := "ok"
	if status != fiber.StatusOK {
		overall = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":   overall,
		"database": dbState,
		"cache":    cacheState,
	})
}

func (hc *HealthController) HandleAlertStats(c *fiber.Ctx) error {
	stats, err := hc.alerts.Stats(c.UserContext())
	if err != nil {
		log.Errorf("[Health] Alert stats failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(stats)
}

// HandleDeadLetters lists the newest FAILED alerts, ?limit=1..100 (default 20).
func (hc *HealthController) HandleDeadLetters(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultDeadLetterLimit)
	if limit <= 0 {
		limit = defaultDeadLetterLimit
	}
	if limit > maxDeadLetterLimit {
		limit = maxDeadLetterLimit
	}

	records, err := hc.alerts.DeadLetters(c.UserContext(), limit)
	if err != nil {
		log.Errorf("[Health] Dead-letter listing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if records == nil {
		records = []models.AlertRecord{}
	}
	return c.JSON(fiber.Map{"count": len(records), "alerts": records})
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
