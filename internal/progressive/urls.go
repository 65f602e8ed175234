package progressive

import (
	"sync"

	"github.com/google/uuid"
)

// URLRegistry hands out revocable handles to result blobs, the way a
// browser hands out object URLs. Every Create must eventually be paired
// with a Revoke or the blob stays pinned for the life of the process.
type URLRegistry interface {
	Create(data []byte, mimeType string) string
	Revoke(url string)
}

// MemoryURLRegistry is the in-process registry used outside tests.
type MemoryURLRegistry struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryURLRegistry creates an empty registry.
func NewMemoryURLRegistry() *MemoryURLRegistry {
	return &MemoryURLRegistry{blobs: make(map[string][]byte)}
}

func (r *MemoryURLRegistry) Create(data []byte, _ string) string {
	url := "blob:pixelbatch/" + uuid.NewString()
	r.mu.Lock()
	r.blobs[url] = data
	r.mu.Unlock()
	return url
}

func (r *MemoryURLRegistry) Revoke(url string) {
	r.mu.Lock()
	delete(r.blobs, url)
	r.mu.Unlock()
}

// Get resolves a handle back to its blob.
func (r *MemoryURLRegistry) Get(url string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.blobs[url]
	return data, ok
}

// Len reports how many handles are live.
func (r *MemoryURLRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blobs)
}
