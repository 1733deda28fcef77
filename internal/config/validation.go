package config

import (
	"fmt"
	"strings"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
)

// Validate checks cross-field invariants after defaults were applied.
func Validate(cfg *Config) error {
	if cfg.Toolchain.CPULimit < 0 {
		return derrors.ConfigInvalid("toolchain.cpu_limit", "must not be negative")
	}
	switch cfg.Storage.Backend {
	case StorageBackendFS:
		if cfg.Storage.FS.Path == "" {
			return derrors.ConfigInvalid("storage.fs.path", "required for fs backend")
		}
	case StorageBackendS3:
		if cfg.Storage.S3.Bucket == "" {
			return derrors.ConfigInvalid("storage.s3.bucket", "required for s3 backend")
		}
	default:
		return derrors.ConfigInvalid("storage.backend", fmt.Sprintf("unsupported backend %q", cfg.Storage.Backend))
	}
	for field, url := range map[string]string{
		"registry.api_url":      cfg.Registry.APIURL,
		"registry.download_url": cfg.Registry.DownloadURL,
	} {
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return derrors.ConfigInvalid(field, "must be an http(s) URL")
		}
	}
	if cfg.Events.NATSURL != "" && cfg.Events.Subject == "" {
		return derrors.ConfigInvalid("events.subject", "required when nats_url is set")
	}
	return nil
}
