package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ivydigitalstorm/grr/pkg/blobstore"
	"github.com/ivydigitalstorm/grr/pkg/store"
)

// BackendConstructor builds a store.Backend rooted at dataDir.
type BackendConstructor func(dataDir string) (store.Backend, error)

// BlobstoreConstructor builds a blobstore.Store rooted at dataDir.
type BlobstoreConstructor func(dataDir string) (blobstore.Store, error)

var (
	mu          sync.RWMutex
	backends    = map[string]BackendConstructor{}
	blobstores  = map[string]BlobstoreConstructor{}
)

// RegisterBackend registers a named backend constructor. Intended to be
// called from a plugin package's init().
func RegisterBackend(name string, ctor BackendConstructor) {
	mu.Lock()
	defer mu.Unlock()
	backends[name] = ctor
}

// RegisterBlobstore registers a named blob-store constructor. Intended to
// be called from a plugin package's init().
func RegisterBlobstore(name string, ctor BlobstoreConstructor) {
	mu.Lock()
	defer mu.Unlock()
	blobstores[name] = ctor
}

// NewBackend constructs the named backend, or returns an error if it was
// never registered.
func NewBackend(name, dataDir string) (store.Backend, error) {
	mu.RLock()
	ctor, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("datastore: no backend registered under name %q", name)
	}
	return ctor(dataDir)
}

// NewBlobstore constructs the named blob store, or returns an error if it
// was never registered.
func NewBlobstore(name, dataDir string) (blobstore.Store, error) {
	mu.RLock()
	ctor, ok := blobstores[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("blobstore: no store registered under name %q", name)
	}
	return ctor(dataDir)
}

// ListBackends returns the sorted names of every registered backend.
func ListBackends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListBlobstores returns the sorted names of every registered blob store.
func ListBlobstores() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(blobstores))
	for name := range blobstores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
