package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"seren/internal/capture"
)

// fileStore keeps staged images as files in a private directory:
//
//	<staging_dir>/
//	  <type>-<sha256>   (one file per staged image)
//
// The directory is emptied when the store is created and on Clear, so a
// crashed terminal never resumes a half-captured session.
type fileStore struct {
	dir string
}

func newFileStore(dir string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	fs := &fileStore{dir: dir}
	if err := fs.Clear(); err != nil {
		return nil, fmt.Errorf("clearing stale staged images: %w", err)
	}
	return fs, nil
}

func (f *fileStore) path(key string) string {
	return filepath.Join(f.dir, key)
}

// Put writes the image atomically (temp file + rename).
func (f *fileStore) Put(key string, data []byte) error {
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
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

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path(key)); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func (f *fileStore) Open(key string) (io.ReadCloser, error) {
	file, err := os.Open(f.path(key))
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (f *fileStore) Delete(key string) {
	os.Remove(f.path(key))
}

func (f *fileStore) Size() int64 {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		total += info.Size()
	}
	return total
}

func (f *fileStore) Clear() error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("reading staging directory: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(f.path(e.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", e.Name(), err)
		}
	}
	return nil
}

// NewFileSystemStagingArea creates a staging area backed by dir.
// maxSize is the per-image limit in bytes.
func NewFileSystemStagingArea(dir string, maxSize int64) (capture.Stager, error) {
	store, err := newFileStore(dir)
	if err != nil {
		return nil, err
	}
	return &stagingArea{store: store, maxSize: maxSize}, nil
}
