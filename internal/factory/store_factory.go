package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/phish-detector/internal/adapters/store"
	"github.com/mikey/phish-detector/internal/config"
	"github.com/mikey/phish-detector/internal/core"
	"go.uber.org/zap"
)

// StoreFactory creates result stores based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateResultStore creates a result store based on the configuration.
// The schema is not created here; callers run EnsureSchema once at startup.
func (f *StoreFactory) CreateResultStore() (core.ResultStore, error) {
	storeCfg, err := f.cfg.GetStore()
	if err != nil {
		return nil, err
	}

	switch storeCfg.Type {
	case "memory":
		return store.NewMemoryStore(f.logger), nil
	case "sqlite", "sqlite-pure":
		if err := os.MkdirAll(filepath.Dir(storeCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		if storeCfg.Type == "sqlite-pure" {
			return store.NewPureSQLiteStore(storeCfg.SQLitePath, storeCfg.BusyTimeout, f.logger), nil
		}
		return store.NewSQLiteStore(storeCfg.SQLitePath, storeCfg.BusyTimeout, f.logger), nil
	case "mysql":
		return store.NewMySQLStore(storeCfg.MySQLDSN, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
}
