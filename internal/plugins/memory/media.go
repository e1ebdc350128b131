package memory

import (
	"context"
	"sync"

	"whisper/internal/core/domain"
)

// MediaStore keeps uploaded objects in memory. URLs use the memory://
// scheme.
type MediaStore struct {
	mu      sync.Mutex
	objects map[string]domain.MediaRef
	// FailUpload, when set, is returned by every Upload.
	FailUpload error
}

func NewMediaStore() *MediaStore {
	return &MediaStore{objects: make(map[string]domain.MediaRef)}
}

func (m *MediaStore) Upload(_ context.Context, in domain.MediaUpload) (*domain.MediaRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpload != nil {
		return nil, m.FailUpload
	}
	publicID := in.PublicID
	if in.Folder != "" {
		publicID = in.Folder + "/" + in.PublicID
	}
	ref := domain.MediaRef{
		URL:          "memory://" + in.ResourceType + "/" + publicID,
		PublicID:     publicID,
		ResourceType: in.ResourceType,
		Bytes:        int64(len(in.Data)),
	}
	m.objects[publicID] = ref
	return &ref, nil
}

// Delete is idempotent.
func (m *MediaStore) Delete(_ context.Context, publicID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, publicID)
	return nil
}

// Has reports whether publicID is stored.
func (m *MediaStore) Has(publicID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[publicID]
	return ok
}

// Len reports how many objects are stored.
func (m *MediaStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
