package storage

import (
	"strings"

	"github.com/smartdevs17/etherfund-dashboard/internal/config"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// NewContentCache creates a cache for the configured storage type
func NewContentCache(cfg *config.StorageConfig) (ContentCache, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "sqlite":
		return NewSQLiteStorage(cfg), nil
	case "postgres", "postgresql":
		return NewPostgreSQLStorage(cfg), nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration,
			"Unsupported storage type", cfg.Type)
	}
}

// ValidateStorageConfig validates storage configuration
func ValidateStorageConfig(cfg *config.StorageConfig) error {
	supportedTypes := []string{"memory", "sqlite", "postgres", "postgresql"}
	supported := false
	for _, t := range supportedTypes {
		if strings.ToLower(cfg.Type) == t {
			supported = true
			break
		}
	}
	if !supported {
		return utils.NewAppError(utils.ErrCodeConfiguration,
			"Unsupported storage type",
			"Supported types: "+strings.Join(supportedTypes, ", "))
	}

	if strings.ToLower(cfg.Type) != "memory" && cfg.ConnectionString == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Storage connection string is required", "")
	}
	return nil
}

// Open creates, connects and migrates a content cache
func Open(cfg *config.StorageConfig) (ContentCache, error) {
	if err := ValidateStorageConfig(cfg); err != nil {
		return nil, err
	}
	cache, err := NewContentCache(cfg)
	if err != nil {
		return nil, err
	}
	if err := cache.Connect(); err != nil {
		return nil, err
	}
	if err := cache.Migrate(); err != nil {
		cache.Close()
		return nil, err
	}
	return cache, nil
}
