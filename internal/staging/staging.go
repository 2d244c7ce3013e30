package staging

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"seren/internal/capture"
)

// ErrUnsupportedImage is returned when staged content is not a JPEG or PNG.
var ErrUnsupportedImage = errors.New("unsupported image format: only JPEG and PNG are accepted")

// ErrImageTooLarge is returned when an image exceeds the per-image limit.
var ErrImageTooLarge = errors.New("image exceeds maximum size")

// stagingArea implements capture.Stager using a pluggable imageStore for
// the storage mechanics. Images are keyed by capture type and checksum, so
// identical bytes staged for two types stay independent.
type stagingArea struct {
	store   imageStore
	maxSize int64
	mu      sync.Mutex
}

var _ capture.Stager = (*stagingArea)(nil)

func storeKey(t capture.CaptureType, checksum string) string {
	return string(t) + "-" + checksum
}

// Stage reads the image, checks its size and format, and stores it.
func (s *stagingArea) Stage(t capture.CaptureType, source string, r io.Reader) (capture.ImageRef, error) {
	// Read one byte past the limit so oversize images are detected without
	// buffering the whole source.
	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return capture.ImageRef{}, fmt.Errorf("reading image: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return capture.ImageRef{}, fmt.Errorf("%w: limit is %d bytes", ErrImageTooLarge, s.maxSize)
	}
	if len(data) == 0 {
		return capture.ImageRef{}, fmt.Errorf("%w: empty file", ErrUnsupportedImage)
	}

	contentType := http.DetectContentType(data)
	if contentType != "image/jpeg" && contentType != "image/png" {
		return capture.ImageRef{}, fmt.Errorf("%w (detected %s)", ErrUnsupportedImage, contentType)
	}

	sum := sha256.Sum256(data)
	ref := capture.ImageRef{
		ID:          hex.EncodeToString(sum[:]),
		Type:        t,
		Size:        int64(len(data)),
		ContentType: contentType,
		Source:      source,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Put(storeKey(t, ref.ID), data); err != nil {
		return capture.ImageRef{}, fmt.Errorf("storing image: %w", err)
	}
	return ref, nil
}

// Open returns a reader for a staged image.
func (s *stagingArea) Open(ref capture.ImageRef) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, err := s.store.Open(storeKey(ref.Type, ref.ID))
	if err != nil {
		return nil, fmt.Errorf("image not staged: %s: %w", ref.ID, err)
	}
	return rc, nil
}

// Remove drops a staged image.
func (s *stagingArea) Remove(ref capture.ImageRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Delete(storeKey(ref.Type, ref.ID))
	return nil
}

// Discard drops every staged image.
func (s *stagingArea) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Clear()
}

// Size returns the number of staged bytes.
func (s *stagingArea) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Size()
}

// nopCloser wraps an in-memory image.
func nopCloser(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}
