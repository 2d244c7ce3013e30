package testutil

import (
	"testing"

	"seren/internal/capture"
	"seren/internal/database"
)

// NewTestJournal creates an in-memory journal with the schema applied.
// It is closed when the test completes.
func NewTestJournal(t *testing.T) capture.Journal {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
