package blobstore

import (
	"context"
	"sync"
)

// MemBlobStore is an in-process map-backed Store, used by unit tests and as
// the default for blobstore.implementation=memory.
type MemBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemBlobStore creates an empty in-memory blob store.
func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemBlobStore) StoreBlobs(ctx context.Context, token string, contents [][]byte) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hashes := make([]string, len(contents))
	for i, content := range contents {
		h := Hash(content)
		buf := make([]byte, len(content))
		copy(buf, content)
		s.blobs[h] = buf
		hashes[i] = h
	}
	return hashes, nil
}

func (s *MemBlobStore) ReadBlobs(ctx context.Context, token string, hashes []string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string][]byte, len(hashes))
	for _, h := range hashes {
		if content, ok := s.blobs[h]; ok {
			buf := make([]byte, len(content))
			copy(buf, content)
			result[h] = buf
		}
	}
	return result, nil
}

func (s *MemBlobStore) BlobsExist(ctx context.Context, token string, hashes []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		_, ok := s.blobs[h]
		result[h] = ok
	}
	return result, nil
}

func (s *MemBlobStore) DeleteBlobs(ctx context.Context, token string, hashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range hashes {
		delete(s.blobs, h)
	}
	return nil
}
