package database

import (
	"fmt"

	"flowscan/internal/config"
	"flowscan/internal/flowscan"
)

// NewBackendFromConfig creates a Backend implementation based on the database config type.
func NewBackendFromConfig(cfg config.DatabaseConfig, logger flowscan.Logger) (flowscan.Backend, error) {
	switch cfg.Type {
	case config.DatabaseSQL:
		db, err := NewSQLDatabase(cfg, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DatabaseMongo:
		db, err := NewMongoDatabase(cfg, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %q", cfg.Type)
	}
}
