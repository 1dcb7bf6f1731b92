package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/notemarket/notemarket/app/models"
	"github.com/notemarket/notemarket/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

var DB *gorm.DB

// GetDB returns the process wide database handle set by SetupDatabase.
func GetDB() *gorm.DB {
	return DB
}

// Driver returns the configured SQL dialect.
func Driver() string {
	switch strings.ToLower(strings.TrimSpace(env.GetEnv("DB_DRIVER", DriverMySQL))) {
	case DriverPostgres, "postgresql", "pgx":
		return DriverPostgres
	default:
		return DriverMySQL
	}
}

func dialector() gorm.Dialector {
	if Driver() == DriverPostgres {
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			env.GetEnv("DB_HOST", "127.0.0.1"),
			env.GetEnv("DB_USER", ""),
			env.GetEnv("DB_PASSWORD", ""),
			env.GetEnv("DB_NAME", ""),
			env.GetEnv("DB_PORT", "5432"),
			env.GetEnv("DB_SSLMODE", "disable"),
		)
		return postgres.Open(dsn)
	}

	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
	return mysql.New(mysql.Config{
		DSN:                       dsn,
		DefaultStringSize:         256,
		SkipInitializeWithVersion: false,
	})
}

// SetupDatabase opens the connection with a bounded retry loop and panics when the
// database stays unreachable.
func SetupDatabase() {
	var err error
	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(dialector(), &gorm.Config{})
		if err == nil {
			// Schema is owned by cmd/migrate; dev setups get a convenience auto-migration.
			if env.IsDev() {
				if merr := AutoMigrate(DB); merr != nil {
					log.Warnf("[Database] AutoMigrate failed: %v", merr)
				}
			}
			log.Infof("[Database] Connected (%s)", Driver())
			return
		}

		log.Errorf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// AutoMigrate creates or updates every table the service touches.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Note{},
		&models.Transaction{},
		&models.Purchase{},
		&models.SellerWallet{},
		&models.Notification{},
		&models.WebhookLog{},
		&models.AlertRecord{},
	)
}
