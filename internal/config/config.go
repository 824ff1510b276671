// Package config loads docufind configuration. Precedence, lowest to
// highest: built-in defaults, the user config file, DOCUFIND_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the complete docufind configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Indexing IndexingConfig `yaml:"indexing" json:"indexing"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// StorageConfig locates the registry and the per-collection stores.
type StorageConfig struct {
	// DataDir holds registry.json and the databases/ directory.
	// Defaults to ~/.docufind.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// IndexingConfig tunes how collections are indexed.
type IndexingConfig struct {
	// Parallel enables pool-based extraction for large collections.
	// Nil means the default (enabled); a pointer distinguishes an
	// explicit false in the file from an absent key.
	Parallel *bool `yaml:"parallel,omitempty" json:"parallel,omitempty"`

	// Workers overrides the extraction pool size. 0 means automatic
	// (75% of the cores).
	Workers int `yaml:"workers" json:"workers"`

	// MaxFileSize skips files above this size, in any form go-humanize
	// accepts ("100 MB", "1.5GiB"). Empty means no limit.
	MaxFileSize string `yaml:"max_file_size" json:"max_file_size"`
}

// SearchConfig tunes federated search behaviour.
type SearchConfig struct {
	// PageSize is the default results-per-page for searches.
	PageSize int `yaml:"page_size" json:"page_size"`

	// DefaultSort is the ordering used when a search names none:
	// relevance, modified, name, or size.
	DefaultSort string `yaml:"default_sort" json:"default_sort"`

	// StoreCacheSize bounds how many read-only store handles the
	// federation engine keeps open.
	StoreCacheSize int `yaml:"store_cache_size" json:"store_cache_size"`
}

// LoggingConfig controls the structured log output.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" json:"level"`

	// Dir is where rotated log files are written. Empty means
	// <data_dir>/logs.
	Dir string `yaml:"dir" json:"dir"`

	// MaxSizeMB rotates the log file once it exceeds this size.
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`

	// MaxBackups is how many rotated files to keep.
	MaxBackups int `yaml:"max_backups" json:"max_backups"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{},
		Indexing: IndexingConfig{
			MaxFileSize: "100 MB",
		},
		Search: SearchConfig{
			PageSize:       10,
			DefaultSort:    "relevance",
			StoreCacheSize: 32,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// GetUserConfigDir returns the directory holding the user config file.
func GetUserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docufind"
	}
	return filepath.Join(home, ".docufind")
}

// GetUserConfigPath returns the user config file path.
func GetUserConfigPath() string {
	return filepath.Join(GetUserConfigDir(), "config.yaml")
}

// UserConfigExists reports whether a user config file is present.
func UserConfigExists() bool {
	_, err := os.Stat(GetUserConfigPath())
	return err == nil
}

// Load builds the effective configuration: defaults, then the config
// file at path (or the user config when path is empty), then DOCUFIND_*
// environment variables. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = GetUserConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path, backing up an existing file
// first. An empty path means the user config location.
func (c *Config) Save(path string) error {
	if path == "" {
		path = GetUserConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := backupConfig(path); err != nil {
			return fmt.Errorf("backup existing config: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// loadYAML merges the file's non-zero values over the current config.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero values from other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Indexing.Parallel != nil {
		c.Indexing.Parallel = other.Indexing.Parallel
	}
	if other.Indexing.Workers != 0 {
		c.Indexing.Workers = other.Indexing.Workers
	}
	if other.Indexing.MaxFileSize != "" {
		c.Indexing.MaxFileSize = other.Indexing.MaxFileSize
	}
	if other.Search.PageSize != 0 {
		c.Search.PageSize = other.Search.PageSize
	}
	if other.Search.DefaultSort != "" {
		c.Search.DefaultSort = other.Search.DefaultSort
	}
	if other.Search.StoreCacheSize != 0 {
		c.Search.StoreCacheSize = other.Search.StoreCacheSize
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Dir != "" {
		c.Logging.Dir = other.Logging.Dir
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxBackups != 0 {
		c.Logging.MaxBackups = other.Logging.MaxBackups
	}
}

// applyEnvOverrides applies DOCUFIND_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCUFIND_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("DOCUFIND_PARALLEL"); v != "" {
		enabled := strings.ToLower(v) == "true" || v == "1"
		c.Indexing.Parallel = &enabled
	}
	if v := os.Getenv("DOCUFIND_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Indexing.Workers = n
		}
	}
	if v := os.Getenv("DOCUFIND_MAX_FILE_SIZE"); v != "" {
		c.Indexing.MaxFileSize = v
	}
	if v := os.Getenv("DOCUFIND_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.PageSize = n
		}
	}
	if v := os.Getenv("DOCUFIND_SORT"); v != "" {
		c.Search.DefaultSort = v
	}
	if v := os.Getenv("DOCUFIND_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the effective configuration.
func (c *Config) Validate() error {
	if c.Search.PageSize < 1 {
		return fmt.Errorf("search.page_size must be at least 1, got %d", c.Search.PageSize)
	}
	if c.Search.StoreCacheSize < 1 {
		return fmt.Errorf("search.store_cache_size must be at least 1, got %d", c.Search.StoreCacheSize)
	}
	if c.Indexing.Workers < 0 {
		return fmt.Errorf("indexing.workers must not be negative, got %d", c.Indexing.Workers)
	}
	switch strings.ToLower(c.Search.DefaultSort) {
	case "relevance", "modified", "name", "size":
	default:
		return fmt.Errorf("search.default_sort must be relevance, modified, name, or size, got %q", c.Search.DefaultSort)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	if _, err := c.MaxFileSizeBytes(); err != nil {
		return err
	}
	return nil
}

// ParallelEnabled reports whether pool-based extraction is on.
// Unset means enabled.
func (c *Config) ParallelEnabled() bool {
	return c.Indexing.Parallel == nil || *c.Indexing.Parallel
}

// DataDir returns the effective data directory, defaulting to
// ~/.docufind.
func (c *Config) DataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return GetUserConfigDir()
}

// LogDir returns the effective log directory.
func (c *Config) LogDir() string {
	if c.Logging.Dir != "" {
		return c.Logging.Dir
	}
	return filepath.Join(c.DataDir(), "logs")
}

// MaxFileSizeBytes parses the indexing size limit. 0 means no limit.
func (c *Config) MaxFileSizeBytes() (int64, error) {
	if c.Indexing.MaxFileSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.Indexing.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("indexing.max_file_size %q: %w", c.Indexing.MaxFileSize, err)
	}
	return int64(n), nil
}
