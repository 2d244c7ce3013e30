package testutil

import (
	"seren/internal/archive"
	"seren/internal/capture"
	"seren/internal/staging"
)

// DefaultStagingMaxSize is the per-image limit for test staging areas (1MB).
const DefaultStagingMaxSize = 1024 * 1024

// NewTestStager creates an in-memory staging area.
func NewTestStager() capture.Stager {
	return staging.NewMemoryStagingArea(DefaultStagingMaxSize)
}

// NewTestArchive creates an in-memory receipt archive.
func NewTestArchive() *archive.MemoryArchive {
	return archive.NewMemoryArchive()
}
