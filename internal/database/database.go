package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bonsaidca/bonsai/internal/database/migrations"
	"github.com/bonsaidca/bonsai/internal/types"
)

// NewDatabase opens the sqlite database and runs migrations. The path comes
// from BONSAI_DB, defaulting to ~/.bonsai/bonsai.db (the directory is created
// on first launch).
func NewDatabase() (*gorm.DB, error) {
	path := os.Getenv("BONSAI_DB")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		dir := filepath.Join(home, ".bonsai")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		path = filepath.Join(dir, "bonsai.db")
	}

	return open(path)
}

// NewTestDatabase opens an isolated in-memory database for tests. Each call
// gets its own uniquely named shared-cache database so gorm's connection
// pool sees the same data on every connection.
func NewTestDatabase() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	return open(dsn)
}

func open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&types.Credential{},
		&types.Schedule{},
		&types.Order{},
	)
	if err != nil {
		return nil, err
	}

	if err := migrations.AddDaemonIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
