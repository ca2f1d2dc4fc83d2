// Package plugins registers the built-in blob-store implementations with
// pkg/registry. It lives outside pkg/blobstore to avoid an import cycle
// (pkg/registry already depends on pkg/blobstore for the Store type), so
// registration happens here instead of via a self-registering init() in
// pkg/blobstore itself. Importing this package for its side effects makes
// "memory" and "bolt" blob stores available to registry.NewBlobstore.
package plugins
