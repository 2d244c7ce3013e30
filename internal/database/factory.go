package database

import (
	"fmt"
	"os"
	"path/filepath"

	"seren/internal/capture"
	"seren/internal/config"
)

// NewDatabaseFromConfig creates the receipt journal for a terminal.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, terminalID string) (capture.Journal, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data_dir: %w", err)
		}
		return open(filepath.Join(cfg.DataDir, terminalID+".db"))
	case "memory":
		return open(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// open keeps a failed open from surfacing as a non-nil interface.
func open(path string) (capture.Journal, error) {
	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}
