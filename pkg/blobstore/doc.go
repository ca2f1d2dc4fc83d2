// Package blobstore is the content-addressed collaborator the core store
// delegates raw blob bytes to. Implementations are keyed by SHA-256 digest.
package blobstore
