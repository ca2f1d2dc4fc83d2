// Package config loads the on-disk YAML configuration for the objectstore
// binary, with OBJECTSTORE_*-prefixed environment variables overriding
// individual fields after the file is parsed.
package config
