// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < explicit file < env
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/logflow/poflow/pkg/logger"
)

// Config holds all poflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Ingest    IngestConfig    `yaml:"ingest"`
	Storage   StorageConfig   `yaml:"storage"`
	Store     StoreConfig     `yaml:"store"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Query     QueryConfig     `yaml:"query"`
	Server    ServerConfig    `yaml:"server"`
	Log       logger.Config   `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Watch     WatchConfig     `yaml:"watch"`
}

// IngestConfig controls the batch ingestion pipeline.
type IngestConfig struct {
	BatchSize       int    `yaml:"batch_size"`
	MaxErrorSamples int    `yaml:"max_error_samples"`
	Workers         int    `yaml:"workers"`
	QueueSize       int    `yaml:"queue_size"`
	DefaultMode     string `yaml:"default_mode"` // skip_existing | overwrite
}

// StorageConfig controls where the columnar artifacts live.
type StorageConfig struct {
	Backend      string   `yaml:"backend"` // local | s3
	LocalRoot    string   `yaml:"local_root"`
	DatasetKey   string   `yaml:"dataset_key"` // must contain {company_code}
	Compression  string   `yaml:"compression"` // snappy | zstd | gzip | lz4 | none
	RowGroupSize int64    `yaml:"row_group_size"`
	S3           S3Config `yaml:"s3"`
}

// S3Config configures S3 or an S3-compatible service such as Wasabi or MinIO.
type S3Config struct {
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	UsePathStyle    bool          `yaml:"use_path_style"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	SessionToken    string        `yaml:"session_token"`
	Timeout         time.Duration `yaml:"timeout"`
}

// StoreConfig selects the record backend used during ingestion.
type StoreConfig struct {
	Backend   string `yaml:"backend"` // columnar | table | memory
	TablePath string `yaml:"table_path"`
}

// JobsConfig selects the import job tracker backend.
type JobsConfig struct {
	Backend       string        `yaml:"backend"` // memory | redis | duckdb
	RedisAddress  string        `yaml:"redis_address"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDatabase int           `yaml:"redis_database"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	RetainFor     time.Duration `yaml:"retain_for"` // 0 keeps jobs forever
	DuckDBPath    string        `yaml:"duckdb_path"`
}

// QueryConfig controls the analytical query engine.
type QueryConfig struct {
	Threads     int           `yaml:"threads"`      // 0 = auto
	MemoryLimit string        `yaml:"memory_limit"` // e.g. "2GB"
	CacheTTL    time.Duration `yaml:"cache_ttl"`    // 0 disables the result cache
	CacheSize   int           `yaml:"cache_size"`
}

// ServerConfig for the HTTP server.
type ServerConfig struct {
	Port          int      `yaml:"port"`
	Host          string   `yaml:"host"`
	MaxUploadSize int64    `yaml:"max_upload_size"` // bytes
	CORSOrigins   []string `yaml:"cors_origins"`
}

// TelemetryConfig for optional OTLP trace export.
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Endpoint      string  `yaml:"endpoint"`
	ServiceName   string  `yaml:"service_name"`
	SamplingRatio float64 `yaml:"sampling_ratio"`
}

// WatchConfig for the drop-folder importer.
type WatchConfig struct {
	Pattern  string        `yaml:"pattern"`
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".poflow")

	return &Config{
		Version: 1,
		Ingest: IngestConfig{
			BatchSize:       1000,
			MaxErrorSamples: 10,
			Workers:         4,
			QueueSize:       64,
			DefaultMode:     "skip_existing",
		},
		Storage: StorageConfig{
			Backend:      "local",
			LocalRoot:    filepath.Join(dataDir, "objects"),
			DatasetKey:   "analytics/{company_code}/purchase_orders.parquet",
			Compression:  "snappy",
			RowGroupSize: 100000,
			S3: S3Config{
				Region:  "us-east-1",
				Timeout: 30 * time.Second,
			},
		},
		Store: StoreConfig{
			Backend:   "columnar",
			TablePath: filepath.Join(dataDir, "records.duckdb"),
		},
		Jobs: JobsConfig{
			Backend:      "duckdb",
			RedisAddress: "localhost:6379",
			RedisPrefix:  "poflow:jobs:",
			DuckDBPath:   filepath.Join(dataDir, "jobs.duckdb"),
		},
		Query: QueryConfig{
			Threads:   0,
			CacheSize: 256,
		},
		Server: ServerConfig{
			Port:          8080,
			Host:          "localhost",
			MaxUploadSize: 100 << 20,
			CORSOrigins:   []string{"*"},
		},
		Log: logger.DefaultConfig(),
		Telemetry: TelemetryConfig{
			Enabled:       false,
			Endpoint:      "localhost:4317",
			ServiceName:   "poflow",
			SamplingRatio: 1.0,
		},
		Watch: WatchConfig{
			Pattern:  "*.csv",
			Debounce: 2 * time.Second,
		},
	}
}

// Validate checks the configuration for values no component can honour.
func (c *Config) Validate() error {
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.MaxErrorSamples < 0 {
		return fmt.Errorf("ingest.max_error_samples must not be negative")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers)
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalRoot == "" {
			return fmt.Errorf("storage.local_root is required for the local backend")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if !strings.Contains(c.Storage.DatasetKey, "{company_code}") {
		return fmt.Errorf("storage.dataset_key must contain {company_code}")
	}
	if c.Storage.RowGroupSize <= 0 {
		return fmt.Errorf("storage.row_group_size must be positive")
	}
	switch c.Store.Backend {
	case "columnar", "memory":
	case "table":
		if c.Store.TablePath == "" {
			return fmt.Errorf("store.table_path is required for the table backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	switch c.Jobs.Backend {
	case "memory", "redis", "duckdb":
	default:
		return fmt.Errorf("unknown jobs.backend %q", c.Jobs.Backend)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // paths that were loaded
	extra  string
	lookup func(string) (string, bool)
}

// Option configures a Manager.
type Option func(*Manager)

// WithFile adds an explicit config file with the highest file priority.
// Unlike the well-known locations it must exist.
func WithFile(path string) Option {
	return func(m *Manager) { m.extra = path }
}

// WithEnv replaces the environment lookup, mainly for tests.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(m *Manager) { m.lookup = lookup }
}

// NewManager creates a new configuration manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		config: Default(),
		lookup: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load loads configuration from all sources in priority order and validates it.
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		m.paths = append(m.paths, path)
	}

	if m.extra != "" {
		if err := m.loadFile(m.extra); err != nil {
			return nil, fmt.Errorf("load %s: %w", m.extra, err)
		}
		m.paths = append(m.paths, m.extra)
	}

	if err := m.loadEnv(); err != nil {
		return nil, err
	}

	if err := m.config.Validate(); err != nil {
		return nil, err
	}
	return m.config, nil
}

func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/poflow/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".poflow", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".poflow.yaml"))
	}

	return paths
}

// loadFile decodes a YAML file over the current configuration.
// Keys present in the file override, absent keys keep their value.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, m.config)
}

// loadEnv applies POFLOW_* environment overrides.
func (m *Manager) loadEnv() error {
	c := m.config
	str := map[string]*string{
		"POFLOW_HOST":                 &c.Server.Host,
		"POFLOW_LOG_LEVEL":            &c.Log.Level,
		"POFLOW_LOG_FORMAT":           &c.Log.Format,
		"POFLOW_STORAGE_BACKEND":      &c.Storage.Backend,
		"POFLOW_LOCAL_ROOT":           &c.Storage.LocalRoot,
		"POFLOW_DATASET_KEY":          &c.Storage.DatasetKey,
		"POFLOW_S3_BUCKET":            &c.Storage.S3.Bucket,
		"POFLOW_S3_REGION":            &c.Storage.S3.Region,
		"POFLOW_S3_ENDPOINT":          &c.Storage.S3.Endpoint,
		"POFLOW_S3_ACCESS_KEY_ID":     &c.Storage.S3.AccessKeyID,
		"POFLOW_S3_SECRET_ACCESS_KEY": &c.Storage.S3.SecretAccessKey,
		"POFLOW_STORE_BACKEND":        &c.Store.Backend,
		"POFLOW_TABLE_PATH":           &c.Store.TablePath,
		"POFLOW_JOBS_BACKEND":         &c.Jobs.Backend,
		"POFLOW_REDIS_ADDR":           &c.Jobs.RedisAddress,
		"POFLOW_REDIS_PASSWORD":       &c.Jobs.RedisPassword,
		"POFLOW_JOBS_DB":              &c.Jobs.DuckDBPath,
		"POFLOW_OTLP_ENDPOINT":        &c.Telemetry.Endpoint,
	}
	for key, dst := range str {
		if v, ok := m.lookup(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"POFLOW_PORT":       &c.Server.Port,
		"POFLOW_WORKERS":    &c.Ingest.Workers,
		"POFLOW_BATCH_SIZE": &c.Ingest.BatchSize,
		"POFLOW_THREADS":    &c.Query.Threads,
	}
	for key, dst := range ints {
		v, ok := m.lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := m.lookup("POFLOW_TELEMETRY"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("POFLOW_TELEMETRY: %w", err)
		}
		c.Telemetry.Enabled = enabled
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to path.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
