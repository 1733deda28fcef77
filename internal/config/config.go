// Package config loads the orchestrator configuration: YAML file, .env files and
// environment overrides, resolved once at startup into an explicit Config value.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
)

// Config is the complete orchestrator configuration.
type Config struct {
	Workspace string          `yaml:"workspace"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Registry  RegistryConfig  `yaml:"registry"`
	Events    EventsConfig    `yaml:"events"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Daemon    DaemonConfig    `yaml:"daemon"`
	Cache     CacheConfig     `yaml:"cache"`
	Retry     RetryConfig     `yaml:"retry"`
}

// SandboxConfig controls how builds are isolated.
type SandboxConfig struct {
	// Image overrides the sandbox image used for containerized builds.
	Image string `yaml:"image,omitempty"`
	// Docker runs builds inside containers. When false, commands run natively.
	Docker bool `yaml:"docker"`
	// RunningInsideDocker is set when the orchestrator itself runs in a container.
	RunningInsideDocker bool `yaml:"running_inside_docker"`
}

// ToolchainConfig selects the compiler toolchain.
type ToolchainConfig struct {
	Channel string `yaml:"channel"`
	// CPULimit caps build parallelism and sandbox CPUs. Zero means unlimited.
	CPULimit int `yaml:"cpu_limit,omitempty"`
}

// DatabaseConfig points at the SQLite database holding build records.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageBackend selects the artifact store implementation.
type StorageBackend string

const (
	StorageBackendFS StorageBackend = "fs"
	StorageBackendS3 StorageBackend = "s3"
)

// StorageConfig configures the artifact store.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`
	FS      FSStorage      `yaml:"fs"`
	S3      S3Storage      `yaml:"s3"`
}

type FSStorage struct {
	Path string `yaml:"path"`
}

type S3Storage struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style"`
}

// RegistryConfig describes the package registry.
type RegistryConfig struct {
	IndexPath string `yaml:"index_path"`
	// IndexURL is the git remote the index checkout is refreshed from.
	// Empty uses the checkout as it is.
	IndexURL    string `yaml:"index_url,omitempty"`
	APIURL      string `yaml:"api_url"`
	DownloadURL string `yaml:"download_url"`
	// DocsURL is the base used for cross-package documentation links.
	DocsURL string `yaml:"docs_url"`
}

// EventsConfig configures build notifications. An empty URL disables publishing.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject"`
}

// MetricsConfig configures the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// DaemonConfig configures periodic world builds.
type DaemonConfig struct {
	Interval time.Duration `yaml:"interval"`
	// Cron, when set, replaces Interval with a crontab schedule.
	Cron string `yaml:"cron"`
}

// CacheConfig points at the visited-release cache file.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// RetryConfig configures retries of registry and storage calls.
type RetryConfig struct {
	Backoff    RetryBackoffMode `yaml:"backoff"`
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	MaxRetries int              `yaml:"max_retries"`
}

// Load reads the configuration file at path (optional), applies .env files,
// environment overrides and defaults, then validates the result.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			return nil, derrors.ConfigNotFound(path)
		case err != nil:
			return nil, derrors.Wrap(err, derrors.CategoryConfig, derrors.SeverityFatal, "failed to read config file").
				WithContext("path", path)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, derrors.Wrap(err, derrors.CategoryConfig, derrors.SeverityFatal, "failed to parse config file").
				WithContext("path", path)
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and no file or environment input.
func Default() *Config {
	cfg := &Config{}
	if err := applyDefaults(cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}
