package boltstore

import (
	"github.com/ivydigitalstorm/grr/pkg/registry"
	"github.com/ivydigitalstorm/grr/pkg/store"
)

func init() {
	registry.RegisterBackend("bolt", func(dataDir string) (store.Backend, error) {
		return New(dataDir)
	})
}
