package staging

import (
	"fmt"
	"io"

	"seren/internal/capture"
)

// memoryStore keeps staged images in process memory. Nothing survives the
// process, which is the default behaviour for capture state.
type memoryStore struct {
	images map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{images: make(map[string][]byte)}
}

func (m *memoryStore) Put(key string, data []byte) error {
	m.images[key] = data
	return nil
}

func (m *memoryStore) Open(key string) (io.ReadCloser, error) {
	data, ok := m.images[key]
	if !ok {
		return nil, fmt.Errorf("no image under key %s", key)
	}
	return nopCloser(data), nil
}

func (m *memoryStore) Delete(key string) {
	delete(m.images, key)
}

func (m *memoryStore) Size() int64 {
	var total int64
	for _, data := range m.images {
		total += int64(len(data))
	}
	return total
}

func (m *memoryStore) Clear() error {
	m.images = make(map[string][]byte)
	return nil
}

// NewMemoryStagingArea creates a staging area that holds images in memory.
// maxSize is the per-image limit in bytes.
func NewMemoryStagingArea(maxSize int64) capture.Stager {
	return &stagingArea{store: newMemoryStore(), maxSize: maxSize}
}
