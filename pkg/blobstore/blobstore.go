package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Store is the blob-store collaborator the core delegates
// ReadBlob(s)/StoreBlob(s)/BlobsExist/DeleteBlob(s) to verbatim.
// Blobs are identified by the hex SHA-256 digest of their content.
type Store interface {
	// StoreBlobs writes each blob, keyed by its own content hash, and
	// returns the hashes in the same order as the input.
	StoreBlobs(ctx context.Context, token string, contents [][]byte) ([]string, error)

	// ReadBlobs returns the content for each requested hash. A hash with no
	// stored blob is simply absent from the result map.
	ReadBlobs(ctx context.Context, token string, hashes []string) (map[string][]byte, error)

	// BlobsExist reports, per requested hash, whether it is stored.
	BlobsExist(ctx context.Context, token string, hashes []string) (map[string]bool, error)

	// DeleteBlobs removes the listed blobs. Deleting an absent hash is not
	// an error.
	DeleteBlobs(ctx context.Context, token string, hashes []string) error
}

// Hash returns the content-addressing key for a blob.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
