// Package memstore is an in-process map-backed store.Backend, used by unit
// tests and as the default for datastore.implementation=memory.
package memstore
