package config

import (
	"path/filepath"
	"time"
)

const (
	DefaultWorkspace    = ".rustwide"
	DefaultChannel      = "nightly"
	DefaultSubject      = "pkgdocs.builds"
	DefaultAPIURL       = "https://crates.io"
	DefaultDownloadURL  = "https://static.crates.io/crates"
	DefaultDocsURL      = "https://docs.rs"
	DefaultDaemonPeriod = time.Hour
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

type workspaceDefaults struct{}

func (workspaceDefaults) Domain() string { return "workspace" }

func (workspaceDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Workspace == "" {
		cfg.Workspace = DefaultWorkspace
	}
	if cfg.Toolchain.Channel == "" {
		cfg.Toolchain.Channel = DefaultChannel
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.Workspace, "pkgdocs.db")
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = filepath.Join(cfg.Workspace, "visited.json")
	}
	return nil
}

type storageDefaults struct{}

func (storageDefaults) Domain() string { return "storage" }

func (storageDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageBackendFS
	}
	if cfg.Storage.Backend == StorageBackendFS && cfg.Storage.FS.Path == "" {
		cfg.Storage.FS.Path = filepath.Join(cfg.Workspace, "storage")
	}
	return nil
}

type registryDefaults struct{}

func (registryDefaults) Domain() string { return "registry" }

func (registryDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Registry.APIURL == "" {
		cfg.Registry.APIURL = DefaultAPIURL
	}
	if cfg.Registry.DownloadURL == "" {
		cfg.Registry.DownloadURL = DefaultDownloadURL
	}
	if cfg.Registry.DocsURL == "" {
		cfg.Registry.DocsURL = DefaultDocsURL
	}
	if cfg.Registry.IndexPath == "" {
		cfg.Registry.IndexPath = filepath.Join(cfg.Workspace, "crates.io-index")
	}
	return nil
}

type runtimeDefaults struct{}

func (runtimeDefaults) Domain() string { return "runtime" }

func (runtimeDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = DefaultSubject
	}
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	if cfg.Daemon.Interval <= 0 {
		cfg.Daemon.Interval = DefaultDaemonPeriod
	}
	if mode := NormalizeRetryBackoff(string(cfg.Retry.Backoff)); mode != "" {
		cfg.Retry.Backoff = mode
	} else {
		cfg.Retry.Backoff = RetryBackoffLinear
	}
	if cfg.Retry.Initial <= 0 {
		cfg.Retry.Initial = time.Second
	}
	if cfg.Retry.Max <= 0 {
		cfg.Retry.Max = 30 * time.Second
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry.MaxRetries = 2
	}
	return nil
}

// defaultAppliers run in order; storage and registry depend on the workspace path.
var defaultAppliers = []DefaultApplier{
	workspaceDefaults{},
	storageDefaults{},
	registryDefaults{},
	runtimeDefaults{},
}

func applyDefaults(cfg *Config) error {
	for _, a := range defaultAppliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}
