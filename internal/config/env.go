package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
)

// Environment variables read once at startup.
const (
	EnvWorkspace   = "PKGDOCS_WORKSPACE"
	EnvDockerImage = "PKGDOCS_LOCAL_DOCKER_IMAGE"
	EnvDocker      = "PKGDOCS_DOCKER"
	EnvToolchain   = "PKGDOCS_TOOLCHAIN"
	EnvCPULimit    = "PKGDOCS_BUILD_CPU_LIMIT"
	EnvDatabase    = "PKGDOCS_DATABASE"
	EnvLogLevel    = "PKGDOCS_LOG_LEVEL"
)

// loadEnvFiles loads .env and .env.local when present. godotenv.Load never
// overrides variables already set in the process environment.
func loadEnvFiles() {
	for _, path := range []string{".env", ".env.local"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "Note: could not load %s: %v\n", path, err)
		}
	}
}

// applyEnvOverrides applies environment overrides on top of file values.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvWorkspace); ok && v != "" {
		cfg.Workspace = v
	}
	if v, ok := lookup(EnvDockerImage); ok && v != "" {
		cfg.Sandbox.Image = v
	}
	if v, ok := lookup(EnvDocker); ok {
		cfg.Sandbox.RunningInsideDocker = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	if v, ok := lookup(EnvToolchain); ok && v != "" {
		cfg.Toolchain.Channel = v
	}
	if v, ok := lookup(EnvCPULimit); ok && v != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return derrors.ConfigInvalid(EnvCPULimit, fmt.Sprintf("invalid cpu limit %q", v))
		}
		cfg.Toolchain.CPULimit = int(n)
	}
	if v, ok := lookup(EnvDatabase); ok && v != "" {
		cfg.Database.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Logging.Level = LogLevel(v)
	}
	return nil
}
