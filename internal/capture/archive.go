package capture

import (
	"context"
	"io"
)

// Archive stores receipts away from the terminal.
type Archive interface {
	// PutReceipt stores a receipt document for a terminal.
	// size is the number of bytes that will be read from r.
	PutReceipt(ctx context.Context, terminalID, receiptID string, r io.Reader, size int64) error

	// GetReceipt writes a stored receipt document to w.
	GetReceipt(ctx context.Context, terminalID, receiptID string, w io.Writer) error

	// ValidateSetup verifies that the archive is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
