package staging

import (
	"fmt"

	"seren/internal/capture"
	"seren/internal/config"
)

// DefaultMaxImageSize is the default per-image limit (10MB).
const DefaultMaxImageSize int64 = 10 * 1024 * 1024

// NewStagingAreaFromConfig creates a Stager based on the config type.
func NewStagingAreaFromConfig(cfg config.StagingConfig) (capture.Stager, error) {
	maxSize := cfg.MaxImageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxImageSize
	}

	switch cfg.Type {
	case "memory", "":
		return NewMemoryStagingArea(maxSize), nil
	case "filesystem":
		if cfg.StagingDir == "" {
			return nil, fmt.Errorf("filesystem staging area requires staging_dir to be set")
		}
		return NewFileSystemStagingArea(cfg.StagingDir, maxSize)
	default:
		return nil, fmt.Errorf("unknown staging area type: %s", cfg.Type)
	}
}
