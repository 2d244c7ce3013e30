package archive

import (
	"context"
	"fmt"

	"seren/internal/capture"
	"seren/internal/config"
)

// NewArchiveFromConfig creates the receipt archive named by cfg.Type. It
// returns nil, nil when archiving is disabled.
func NewArchiveFromConfig(ctx context.Context, cfg config.ArchiveConfig) (capture.Archive, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryArchive(), nil
	case "filesystem":
		if cfg.FSArchiveRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_archive_root to be set")
		}
		a, err := NewFileSystemArchive(cfg.FSArchiveRoot)
		if err != nil {
			return nil, err
		}
		return a, nil
	case "s3":
		a, err := NewS3Archive(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
