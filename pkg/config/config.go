package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the objectstore binary's on-disk configuration.
type Config struct {
	Datastore DatastoreConfig `yaml:"datastore"`
	Blobstore BlobstoreConfig `yaml:"blobstore"`
	Log       LogConfig       `yaml:"log"`
	Flush     FlushConfig     `yaml:"flush"`
}

// DatastoreConfig selects and configures the registered backend.
type DatastoreConfig struct {
	Implementation string `yaml:"implementation"`
	DataDir        string `yaml:"data_dir"`
}

// BlobstoreConfig selects the registered blob store.
type BlobstoreConfig struct {
	Implementation string `yaml:"implementation"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// FlushConfig configures the store's background loop periods, in seconds.
// Zero selects the store package's own defaults.
type FlushConfig struct {
	IntervalSeconds        int `yaml:"interval_seconds"`
	MonitorIntervalSeconds int `yaml:"monitor_interval_seconds"`
}

// Defaults returns the configuration used when no file and no environment
// overrides are supplied.
func Defaults() Config {
	return Config{
		Datastore: DatastoreConfig{
			Implementation: "memory",
			DataDir:        "./objectstore-data",
		},
		Blobstore: BlobstoreConfig{
			Implementation: "memory",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Load reads a YAML configuration file at path, applies it over Defaults,
// and then applies OBJECTSTORE_*-prefixed environment variable overrides.
// An empty path skips the file read and returns Defaults with environment
// overrides applied.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("OBJECTSTORE_DATASTORE_IMPLEMENTATION"); ok {
		cfg.Datastore.Implementation = v
	}
	if v, ok := os.LookupEnv("OBJECTSTORE_DATASTORE_DATA_DIR"); ok {
		cfg.Datastore.DataDir = v
	}
	if v, ok := os.LookupEnv("OBJECTSTORE_BLOBSTORE_IMPLEMENTATION"); ok {
		cfg.Blobstore.Implementation = v
	}
	if v, ok := os.LookupEnv("OBJECTSTORE_LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := os.LookupEnv("OBJECTSTORE_LOG_JSON"); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Log.JSON = parsed
		}
	}
	if v, ok := os.LookupEnv("OBJECTSTORE_FLUSH_INTERVAL_SECONDS"); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Flush.IntervalSeconds = parsed
		}
	}
	if v, ok := os.LookupEnv("OBJECTSTORE_FLUSH_MONITOR_INTERVAL_SECONDS"); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Flush.MonitorIntervalSeconds = parsed
		}
	}
}
