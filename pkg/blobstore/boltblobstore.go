package blobstore

import (
	"context"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketBlobs = []byte("blobs")

// BoltBlobStore is a durable Store backed by go.etcd.io/bbolt, used for
// blobstore.implementation=bolt.
type BoltBlobStore struct {
	db *bolt.DB
}

// NewBoltBlobStore opens (creating if absent) a bbolt database under
// dataDir for blob storage.
func NewBoltBlobStore(dataDir string) (*BoltBlobStore, error) {
	dbPath := filepath.Join(dataDir, "blobs.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlobs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create blobs bucket: %w", err)
	}

	return &BoltBlobStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltBlobStore) Close() error {
	return s.db.Close()
}

func (s *BoltBlobStore) StoreBlobs(ctx context.Context, token string, contents [][]byte) ([]string, error) {
	hashes := make([]string, len(contents))
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		for i, content := range contents {
			h := Hash(content)
			if err := b.Put([]byte(h), content); err != nil {
				return fmt.Errorf("failed to store blob %s: %w", h, err)
			}
			hashes[i] = h
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

func (s *BoltBlobStore) ReadBlobs(ctx context.Context, token string, hashes []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(hashes))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		for _, h := range hashes {
			data := b.Get([]byte(h))
			if data == nil {
				continue
			}
			buf := make([]byte, len(data))
			copy(buf, data)
			result[h] = buf
		}
		return nil
	})
	return result, err
}

func (s *BoltBlobStore) BlobsExist(ctx context.Context, token string, hashes []string) (map[string]bool, error) {
	result := make(map[string]bool, len(hashes))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		for _, h := range hashes {
			result[h] = b.Get([]byte(h)) != nil
		}
		return nil
	})
	return result, err
}

func (s *BoltBlobStore) DeleteBlobs(ctx context.Context, token string, hashes []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		for _, h := range hashes {
			if err := b.Delete([]byte(h)); err != nil {
				return fmt.Errorf("failed to delete blob %s: %w", h, err)
			}
		}
		return nil
	})
}
