// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/registry/lib/rights"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Storage backends.
const (
	BackendDisk  = "disk"
	BackendRedis = "redis"
)

// Team directory backends.
const (
	DirectoryStatic = "static"
	DirectoryGitHub = "github"
)

// Config is the master configuration for the registry.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Root is the base directory for registry data. Other paths may
	// refer to it as ${REGISTRY_ROOT}.
	Root string `yaml:"root"`

	Database   DatabaseConfig             `yaml:"database"`
	Storage    StorageConfig              `yaml:"storage"`
	Index      IndexConfig                `yaml:"index"`
	Limits     LimitsConfig               `yaml:"limits"`
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`

	// ReservedNames are crate names nobody may publish.
	ReservedNames []string `yaml:"reserved_names"`

	// CategoriesFile is a JSONC category taxonomy seeded into the
	// store on migrate. Empty leaves the categories table alone.
	CategoriesFile string `yaml:"categories_file"`

	Directory DirectoryConfig `yaml:"directory"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Database *DatabaseConfig `yaml:"database,omitempty"`
	Storage  *StorageConfig  `yaml:"storage,omitempty"`
	Index    *IndexConfig    `yaml:"index,omitempty"`
	Limits   *LimitsConfig   `yaml:"limits,omitempty"`
	Jobs     *JobsConfig     `yaml:"jobs,omitempty"`
}

// DatabaseConfig configures the SQLite record store.
type DatabaseConfig struct {
	// Path is the database file.
	// Default: ${REGISTRY_ROOT}/registry.db
	Path string `yaml:"path"`

	// PoolSize is the number of connections.
	// Default: 4
	PoolSize int `yaml:"pool_size"`
}

// StorageConfig configures the blob store for archives, readmes and
// sparse index files.
type StorageConfig struct {
	// Backend is "disk" or "redis".
	Backend string `yaml:"backend"`

	// DiskRoot is the disk backend's directory.
	// Default: ${REGISTRY_ROOT}/blobs
	DiskRoot string `yaml:"disk_root"`

	// RedisURL is the redis backend's server, as a redis:// URL.
	RedisURL string `yaml:"redis_url"`

	// KeyPrefix namespaces redis keys.
	// Default: registry:
	KeyPrefix string `yaml:"key_prefix"`

	// BreakerThreshold is the number of consecutive backend failures
	// that open the circuit breaker. Zero disables the breaker.
	// Default: 0 (development), 5 (production)
	BreakerThreshold int64 `yaml:"breaker_threshold"`
}

// IndexConfig configures the git index and its synchronization.
type IndexConfig struct {
	// Repository is the git working tree holding the index.
	// Default: ${REGISTRY_ROOT}/index
	Repository string `yaml:"repository"`

	// LockRedisURL selects a shared redis lock for upload-index.
	// Empty uses an in-process lock, which only guards one process.
	LockRedisURL string `yaml:"lock_redis_url"`

	// LockTTL is the sync lease, renewed after every upload.
	// Default: 10m
	LockTTL time.Duration `yaml:"lock_ttl"`

	// Concurrency is the number of parallel uploads.
	// Default: 4
	Concurrency int `yaml:"concurrency"`
}

// LimitsConfig holds the registry-wide publish ceilings.
type LimitsConfig struct {
	// MaxUploadSize bounds the compressed archive in bytes.
	// Default: 10 MiB
	MaxUploadSize int64 `yaml:"max_upload_size"`

	// MaxUnpackSize bounds the decompressed archive in bytes.
	// Default: 512 MiB
	MaxUnpackSize int64 `yaml:"max_unpack_size"`

	// NewVersionDailyLimit caps versions per crate per 24 hours.
	// Zero disables the cap.
	NewVersionDailyLimit int `yaml:"new_version_daily_limit"`
}

// RateLimitConfig is one action's token bucket.
type RateLimitConfig struct {
	Rate  time.Duration `yaml:"rate"`
	Burst int           `yaml:"burst"`
}

// DirectoryConfig selects where team membership comes from.
type DirectoryConfig struct {
	// Backend is "static" or "github".
	Backend string `yaml:"backend"`

	// Teams and Orgs populate the static directory.
	Teams []rights.StaticTeam `yaml:"teams"`
	Orgs  []rights.StaticOrg  `yaml:"orgs"`

	// GitHubAPIURL overrides the API base URL.
	// Default: https://api.github.com
	GitHubAPIURL string `yaml:"github_api_url"`

	// GitHubTokenFile holds the API token for the github backend.
	GitHubTokenFile string `yaml:"github_token_file"`
}

// JobsConfig configures the background job queue.
type JobsConfig struct {
	// MaxAttempts moves a job to failed after this many failures.
	// Default: 5
	MaxAttempts int `yaml:"max_attempts"`

	// Lease is how long a claimed job is invisible to other workers.
	// Default: 5m
	Lease time.Duration `yaml:"lease"`

	// PollInterval is how often an idle worker checks for jobs.
	// Default: 5s
	PollInterval time.Duration `yaml:"poll_interval"`

	// RetryBase and RetryMax bound the exponential retry delay.
	// Default: 10s and 1h
	RetryBase time.Duration `yaml:"retry_base"`
	RetryMax  time.Duration `yaml:"retry_max"`
}

// MetricsConfig configures Prometheus export.
type MetricsConfig struct {
	// Namespace prefixes every metric name.
	// Default: registry
	Namespace string `yaml:"namespace"`

	// Listen is the address "jobs run" serves /metrics on. Empty
	// disables the endpoint.
	Listen string `yaml:"listen"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist to give every field a usable value, not as a fallback:
// the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "registry")

	return &Config{
		Environment: Development,
		Root:        defaultRoot,
		Database: DatabaseConfig{
			Path:     "${REGISTRY_ROOT}/registry.db",
			PoolSize: 4,
		},
		Storage: StorageConfig{
			Backend:   BackendDisk,
			DiskRoot:  "${REGISTRY_ROOT}/blobs",
			KeyPrefix: "registry:",
		},
		Index: IndexConfig{
			Repository:  "${REGISTRY_ROOT}/index",
			LockTTL:     10 * time.Minute,
			Concurrency: 4,
		},
		Limits: LimitsConfig{
			MaxUploadSize: 10 << 20,
			MaxUnpackSize: 512 << 20,
		},
		RateLimits: map[string]RateLimitConfig{
			"publish-new":    {Rate: 10 * time.Minute, Burst: 5},
			"publish-update": {Rate: time.Minute, Burst: 30},
		},
		Directory: DirectoryConfig{
			Backend:      DirectoryStatic,
			GitHubAPIURL: "https://api.github.com",
		},
		Jobs: JobsConfig{
			MaxAttempts:  5,
			Lease:        5 * time.Minute,
			PollInterval: 5 * time.Second,
			RetryBase:    10 * time.Second,
			RetryMax:     time.Hour,
		},
		Metrics: MetricsConfig{
			Namespace: "registry",
		},
	}
}

// Load loads configuration from the REGISTRY_CONFIG environment
// variable. If it is not set, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv("REGISTRY_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("REGISTRY_CONFIG environment variable not set; " +
			"set it to the path of your registry.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. The only expansion
// performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{}
		}
		if overrides.Storage == nil {
			overrides.Storage = &StorageConfig{}
		}
		if overrides.Storage.BreakerThreshold == 0 && c.Storage.BreakerThreshold == 0 {
			overrides.Storage.BreakerThreshold = 5
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Database != nil {
		if overrides.Database.Path != "" {
			c.Database.Path = overrides.Database.Path
		}
		if overrides.Database.PoolSize != 0 {
			c.Database.PoolSize = overrides.Database.PoolSize
		}
	}

	if overrides.Storage != nil {
		if overrides.Storage.Backend != "" {
			c.Storage.Backend = overrides.Storage.Backend
		}
		if overrides.Storage.DiskRoot != "" {
			c.Storage.DiskRoot = overrides.Storage.DiskRoot
		}
		if overrides.Storage.RedisURL != "" {
			c.Storage.RedisURL = overrides.Storage.RedisURL
		}
		if overrides.Storage.KeyPrefix != "" {
			c.Storage.KeyPrefix = overrides.Storage.KeyPrefix
		}
		if overrides.Storage.BreakerThreshold != 0 {
			c.Storage.BreakerThreshold = overrides.Storage.BreakerThreshold
		}
	}

	if overrides.Index != nil {
		if overrides.Index.Repository != "" {
			c.Index.Repository = overrides.Index.Repository
		}
		if overrides.Index.LockRedisURL != "" {
			c.Index.LockRedisURL = overrides.Index.LockRedisURL
		}
		if overrides.Index.LockTTL != 0 {
			c.Index.LockTTL = overrides.Index.LockTTL
		}
		if overrides.Index.Concurrency != 0 {
			c.Index.Concurrency = overrides.Index.Concurrency
		}
	}

	if overrides.Limits != nil {
		if overrides.Limits.MaxUploadSize != 0 {
			c.Limits.MaxUploadSize = overrides.Limits.MaxUploadSize
		}
		if overrides.Limits.MaxUnpackSize != 0 {
			c.Limits.MaxUnpackSize = overrides.Limits.MaxUnpackSize
		}
		if overrides.Limits.NewVersionDailyLimit != 0 {
			c.Limits.NewVersionDailyLimit = overrides.Limits.NewVersionDailyLimit
		}
	}

	if overrides.Jobs != nil {
		if overrides.Jobs.MaxAttempts != 0 {
			c.Jobs.MaxAttempts = overrides.Jobs.MaxAttempts
		}
		if overrides.Jobs.Lease != 0 {
			c.Jobs.Lease = overrides.Jobs.Lease
		}
		if overrides.Jobs.PollInterval != 0 {
			c.Jobs.PollInterval = overrides.Jobs.PollInterval
		}
		if overrides.Jobs.RetryBase != 0 {
			c.Jobs.RetryBase = overrides.Jobs.RetryBase
		}
		if overrides.Jobs.RetryMax != 0 {
			c.Jobs.RetryMax = overrides.Jobs.RetryMax
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"REGISTRY_ROOT": c.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Root = expandVars(c.Root, vars)
	vars["REGISTRY_ROOT"] = c.Root

	c.Database.Path = expandVars(c.Database.Path, vars)
	c.Storage.DiskRoot = expandVars(c.Storage.DiskRoot, vars)
	c.Index.Repository = expandVars(c.Index.Repository, vars)
	c.CategoriesFile = expandVars(c.CategoriesFile, vars)
	c.Directory.GitHubTokenFile = expandVars(c.Directory.GitHubTokenFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. vars wins
// over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Every problem is
// reported, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}
	if c.Database.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("database.pool_size must be at least 1"))
	}

	switch c.Storage.Backend {
	case BackendDisk:
		if c.Storage.DiskRoot == "" {
			errs = append(errs, fmt.Errorf("storage.disk_root is required for the disk backend"))
		}
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, fmt.Errorf("storage.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be one of: %v", []string{BackendDisk, BackendRedis}))
	}

	if c.Index.Repository == "" {
		errs = append(errs, fmt.Errorf("index.repository is required"))
	}
	if c.Index.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("index.lock_ttl must be positive"))
	}
	if c.Index.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("index.concurrency must be at least 1"))
	}
	if c.Environment == Production && c.Index.LockRedisURL == "" {
		errs = append(errs, fmt.Errorf("index.lock_redis_url is required in production"))
	}

	if c.Limits.MaxUploadSize <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_upload_size must be positive"))
	}
	if c.Limits.MaxUnpackSize < 0 {
		errs = append(errs, fmt.Errorf("limits.max_unpack_size must not be negative"))
	}
	if c.Limits.NewVersionDailyLimit < 0 {
		errs = append(errs, fmt.Errorf("limits.new_version_daily_limit must not be negative"))
	}

	actions := []string{"publish-new", "publish-update"}
	for action, limit := range c.RateLimits {
		if !slices.Contains(actions, action) {
			errs = append(errs, fmt.Errorf("rate_limits.%s: unknown action (known: %v)", action, actions))
			continue
		}
		if limit.Rate <= 0 || limit.Burst < 1 {
			errs = append(errs, fmt.Errorf("rate_limits.%s: rate must be positive and burst at least 1", action))
		}
	}

	switch c.Directory.Backend {
	case DirectoryStatic:
	case DirectoryGitHub:
		if c.Directory.GitHubTokenFile == "" {
			errs = append(errs, fmt.Errorf("directory.github_token_file is required for the github backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("directory.backend must be one of: %v", []string{DirectoryStatic, DirectoryGitHub}))
	}

	if c.Jobs.Lease <= 0 {
		errs = append(errs, fmt.Errorf("jobs.lease must be positive"))
	}
	if c.Jobs.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("jobs.poll_interval must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the directories the configured paths live in.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Root, filepath.Dir(c.Database.Path)}
	if c.Storage.Backend == BackendDisk {
		paths = append(paths, c.Storage.DiskRoot)
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
