package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"seren/internal/capture"
)

// FileSystemArchive stores receipts under a root directory:
//
//	<root>/
//	  <terminalID>/
//	    <receiptID>.receipt
type FileSystemArchive struct {
	root string
}

// NewFileSystemArchive creates the archive root if needed.
func NewFileSystemArchive(root string) (*FileSystemArchive, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive root: %w", err)
	}
	return &FileSystemArchive{root: root}, nil
}

func (a *FileSystemArchive) receiptPath(terminalID, receiptID string) (string, error) {
	for _, part := range []string{terminalID, receiptID} {
		if part == "" || part != filepath.Base(part) || part == "." || part == ".." {
			return "", fmt.Errorf("invalid archive key component: %q", part)
		}
	}
	return filepath.Join(a.root, terminalID, receiptID+".receipt"), nil
}

// PutReceipt writes the receipt atomically.
func (a *FileSystemArchive) PutReceipt(_ context.Context, terminalID, receiptID string, r io.Reader, size int64) error {
	dest, err := a.receiptPath(terminalID, receiptID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create terminal directory: %w", err)
	}
	return writeFileAtomic(dest, r, size)
}

// GetReceipt copies a stored receipt to w.
func (a *FileSystemArchive) GetReceipt(_ context.Context, terminalID, receiptID string, w io.Writer) error {
	src, err := a.receiptPath(terminalID, receiptID)
	if err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s/%s", capture.ErrReceiptNotFound, terminalID, receiptID)
		}
		return fmt.Errorf("failed to open receipt: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read receipt: %w", err)
	}
	return nil
}

// ValidateSetup checks that the root is a writable directory.
func (a *FileSystemArchive) ValidateSetup(context.Context) error {
	info, err := os.Stat(a.root)
	if err != nil {
		return fmt.Errorf("archive root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root is not a directory: %s", a.root)
	}

	probe, err := os.CreateTemp(a.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("archive root not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// writeFileAtomic writes r to a temp file beside dest and renames it into
// place once size bytes have been written.
func writeFileAtomic(dest string, r io.Reader, size int64) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write receipt: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ capture.Archive = (*FileSystemArchive)(nil)
