// Package db opens the embedded metadata database.
package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/vaultdrop/vaultdrop/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens (or creates) the sqlite database at path and applies the
// schema. Migrations are additive: AutoMigrate only ever adds missing
// columns and indexes, so re-running against an existing file is a no-op.
func Open(path string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps readers unblocked while a handler writes.
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if err := gdb.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	if err := gdb.AutoMigrate(&schema.Content{}, &schema.Chunk{}); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return gdb, nil
}
