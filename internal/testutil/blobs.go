package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

const memoryBlobPrefix = "https://blobs.test/media/"

// MemoryBlobStore is an in-process BlobStore for tests
type MemoryBlobStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: make(map[string][]byte)}
}

// FailUploads makes every following Upload return err; nil restores normal behaviour
func (m *MemoryBlobStore) FailUploads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadErr = err
}

func (m *MemoryBlobStore) Upload(_ context.Context, localPath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.uploadErr != nil {
		return "", m.uploadErr
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}

	url := memoryBlobPrefix + uuid.NewString()
	m.objects[url] = data
	return url, nil
}

func (m *MemoryBlobStore) Remove(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if url == "" {
		return nil
	}
	if _, ok := m.objects[url]; !ok {
		return fmt.Errorf("no blob at %s", url)
	}
	delete(m.objects, url)
	return nil
}

// Has reports whether url is currently stored
func (m *MemoryBlobStore) Has(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[url]
	return ok
}

// Len returns the number of stored blobs
func (m *MemoryBlobStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
