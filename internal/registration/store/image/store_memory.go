package image

import (
	"context"
	"fmt"
	"sync"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
)

// Blob is a stored upload.
type Blob struct {
	ContentType string
	Data        []byte
}

// InMemoryImageStore holds uploaded document images until the record that
// references them releases the handle. Nothing is written to disk.
type InMemoryImageStore struct {
	mu    sync.RWMutex
	blobs map[id.ImageID]Blob
	bytes int64
}

func New() *InMemoryImageStore {
	return &InMemoryImageStore{blobs: make(map[id.ImageID]Blob)}
}

// Put stores a copy of data and returns a fresh handle to it.
func (s *InMemoryImageStore) Put(_ context.Context, contentType string, data []byte) (models.ImageRef, error) {
	if len(data) == 0 {
		return models.ImageRef{}, fmt.Errorf("empty image: %w", sentinel.ErrInvalidState)
	}
	ref := models.ImageRef{ID: id.NewImageID(), ContentType: contentType, Size: len(data)}
	blob := Blob{ContentType: contentType, Data: append([]byte(nil), data...)}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[ref.ID] = blob
	s.bytes += int64(len(data))
	return ref, nil
}

func (s *InMemoryImageStore) Get(_ context.Context, imageID id.ImageID) (Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[imageID]
	if !ok {
		return Blob{}, fmt.Errorf("image %s: %w", imageID, sentinel.ErrNotFound)
	}
	return blob, nil
}

// Release frees the blob behind imageID. Releasing an unknown handle is a
// no-op, so double release is harmless.
func (s *InMemoryImageStore) Release(imageID id.ImageID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if blob, ok := s.blobs[imageID]; ok {
		s.bytes -= int64(len(blob.Data))
		delete(s.blobs, imageID)
	}
}

// Stats reports how many blobs are held and their total size.
func (s *InMemoryImageStore) Stats() (count int, bytes int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs), s.bytes
}
