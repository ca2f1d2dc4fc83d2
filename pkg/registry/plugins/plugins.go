package plugins

import (
	"github.com/ivydigitalstorm/grr/pkg/blobstore"
	"github.com/ivydigitalstorm/grr/pkg/registry"
)

func init() {
	registry.RegisterBlobstore("memory", func(dataDir string) (blobstore.Store, error) {
		return blobstore.NewMemBlobStore(), nil
	})
	registry.RegisterBlobstore("bolt", func(dataDir string) (blobstore.Store, error) {
		return blobstore.NewBoltBlobStore(dataDir)
	})
}
