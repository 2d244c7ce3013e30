package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"seren/internal/capture"
)

// MemoryArchive keeps receipts in memory. It is safe for concurrent use.
type MemoryArchive struct {
	receipts map[string][]byte // "terminalID/receiptID" -> document
	mu       sync.RWMutex
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{receipts: make(map[string][]byte)}
}

func receiptKey(terminalID, receiptID string) string {
	return terminalID + "/" + receiptID
}

// PutReceipt stores a receipt document, replacing any previous copy.
func (m *MemoryArchive) PutReceipt(_ context.Context, terminalID, receiptID string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read receipt: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[receiptKey(terminalID, receiptID)] = data
	return nil
}

// GetReceipt writes a stored receipt to w.
func (m *MemoryArchive) GetReceipt(_ context.Context, terminalID, receiptID string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.receipts[receiptKey(terminalID, receiptID)]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s/%s", capture.ErrReceiptNotFound, terminalID, receiptID)
	}
	_, err := io.Copy(w, bytes.NewReader(data))
	return err
}

// ValidateSetup always succeeds for the memory archive.
func (m *MemoryArchive) ValidateSetup(context.Context) error {
	return nil
}

// Len returns the number of stored receipts.
func (m *MemoryArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.receipts)
}

var _ capture.Archive = (*MemoryArchive)(nil)
