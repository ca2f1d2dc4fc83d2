// Package registry is a string-keyed constructor registry for datastore
// backends and blob stores. Implementations self-register via a blank
// import's init() rather than reflection, mirroring the teacher's
// subcommand-registration idiom applied to pluggable storage.
package registry
