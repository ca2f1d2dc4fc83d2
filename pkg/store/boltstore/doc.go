// Package boltstore is a durable store.Backend on top of go.etcd.io/bbolt,
// used for datastore.implementation=bolt. One bucket holds subject rows;
// each row value is a gob-encoded map of attribute to cell list.
package boltstore
