package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite opens a named in-memory database with the full schema. It backs the
// package tests; each name gets an isolated database.
func OpenSQLite(name string) (*gorm.DB, error) {
	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)
	return openSQLite(dsn, 1)
}

// OpenSQLiteFile opens a file-backed database in WAL mode that allows
// maxOpenConns concurrent connections, so transactions really contend.
func OpenSQLiteFile(path string, maxOpenConns int) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000", path)
	return openSQLite(dsn, maxOpenConns)
}

func openSQLite(dsn string, maxOpenConns int) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
