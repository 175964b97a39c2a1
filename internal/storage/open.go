package storage

import (
	"fmt"

	"github.com/hyperjump/tcmkb/internal/config"
)

// Open returns the Storage selected by cfg.Driver.
func Open(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		return NewSQLiteStorage(cfg.DatabasePath)
	case config.DriverPostgres:
		return NewPostgresStorage(cfg.PostgresDSN, PostgresOptions{
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
