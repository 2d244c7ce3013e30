package capture

import "time"

// Receipt is a completion summary recorded on this terminal.
type Receipt struct {
	ID            string
	SessionID     string
	ResidentName  string
	UnitNumber    string
	Mode          Mode
	TotalCaptures int
	CompletedAt   time.Time // zero when the server did not report it
	RecordedAt    time.Time
	Summary       []byte // JSON-encoded CompletionSummary
	Archived      bool
	Encrypted     bool
}

// OperationRecord is one journaled operator command.
type OperationRecord struct {
	ID         int64
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
}

// Journal provides local persistence for receipts and operator operations.
type Journal interface {
	// Receipt operations

	// CreateReceipt records a receipt. Receipts are unique per session.
	CreateReceipt(r *Receipt) error

	// FindReceipt returns a receipt by ID, or nil if none exists.
	FindReceipt(id string) (*Receipt, error)

	// FindReceiptBySession returns the receipt for a session, or nil.
	FindReceiptBySession(sessionID string) (*Receipt, error)

	// ListReceipts returns the most recent receipts, newest first.
	ListReceipts(limit int) ([]*Receipt, error)

	// MarkReceiptArchived flags a receipt as copied to the archive.
	MarkReceiptArchived(id string, encrypted bool) error

	// Operation operations

	// CreateOperation starts an operation record and returns its ID.
	CreateOperation(operation, parameters string, startedAt time.Time) (int64, error)

	// FinishOperation sets the final status of an operation.
	FinishOperation(id int64, status string, finishedAt time.Time) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*OperationRecord, error)

	// CheckMigrations verifies the schema is up to date.
	CheckMigrations() error

	// Close closes the journal.
	Close() error
}
