package memstore

import (
	"github.com/ivydigitalstorm/grr/pkg/registry"
	"github.com/ivydigitalstorm/grr/pkg/store"
)

func init() {
	registry.RegisterBackend("memory", func(dataDir string) (store.Backend, error) {
		return New(), nil
	})
}
