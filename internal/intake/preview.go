package intake

import (
	"sync"

	"github.com/google/uuid"
)

// PreviewStore holds revocable preview references for uploaded images.
type PreviewStore interface {
	Create(file UploadedFile) (string, error)
	Open(ref string) (UploadedFile, bool)
	Revoke(ref string)
}

// MemoryPreviewStore keeps previews in process memory until revoked.
type MemoryPreviewStore struct {
	mu    sync.RWMutex
	files map[string]UploadedFile
}

func NewMemoryPreviewStore() *MemoryPreviewStore {
	return &MemoryPreviewStore{files: make(map[string]UploadedFile)}
}

func (m *MemoryPreviewStore) Create(file UploadedFile) (string, error) {
	ref := "preview-" + uuid.NewString()
	m.mu.Lock()
	m.files[ref] = file
	m.mu.Unlock()
	return ref, nil
}

func (m *MemoryPreviewStore) Open(ref string) (UploadedFile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[ref]
	return f, ok
}

func (m *MemoryPreviewStore) Revoke(ref string) {
	m.mu.Lock()
	delete(m.files, ref)
	m.mu.Unlock()
}

// Len is the number of live previews.
func (m *MemoryPreviewStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
