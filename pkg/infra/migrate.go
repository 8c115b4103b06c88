package infra

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	postgres_wrapper "github.com/joripage/exchange-core/pkg/infra/postgres"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IMigrateTool tool to migrate schema and data.
type IMigrateTool interface {
	// ConnectAndMigrate waits for the database, then migrates it.
	ConnectAndMigrate(cfg *postgres_wrapper.PostgresConfig, source string) (*gorm.DB, error)

	// Migrate from current version to latest version.
	Migrate(source string, connStr string) error
}

type migrateTool struct {
	mu sync.Mutex
}

var once sync.Once         // nolint
var singleton IMigrateTool // nolint

// GetMigrateTool get singleton instance for migrate tool
func GetMigrateTool() IMigrateTool { // nolint
	once.Do(func() {
		singleton = &migrateTool{}
	})
	return singleton
}

// Migrate execute migration in serialize. A dirty version left by a failed
// run is forced back one step before migrating up again.
func (mt *migrateTool) Migrate(source string, connStr string) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	logger := zap.S().With("source", source)
	logger.Info("migrating schema")

	mg, err := migrate.New(source, connStr)
	if err != nil {
		return fmt.Errorf("create migration: %w", err)
	}
	defer mg.Close()

	version, dirty, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}

	if dirty {
		logger.Warnf("schema version %d is dirty, forcing %d", version, int(version)-1)
		if err := mg.Force(int(version) - 1); err != nil {
			return fmt.Errorf("force version %d: %w", int(version)-1, err)
		}
	}

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	logger.Info("migration done")
	return nil
}

func (mt *migrateTool) ConnectAndMigrate(cfg *postgres_wrapper.PostgresConfig, source string) (*gorm.DB, error) {
	db, err := postgres_wrapper.InitPostgresWithBackoff(cfg)
	if err != nil {
		return nil, err
	}
	if err := mt.Migrate(source, cfg.MigrationConnURL); err != nil {
		return nil, err
	}
	return db, nil
}
