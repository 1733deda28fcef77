package sandbox

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"time"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
)

const toolchainTimeout = 15 * time.Minute

// Toolchain manages one rustup channel installed in the workspace.
type Toolchain struct {
	ws      *Workspace
	channel string
}

// Channel returns the toolchain name, for example "nightly".
func (t *Toolchain) Channel() string { return t.channel }

func (t *Toolchain) rustup(ctx context.Context, args ...string) ([]string, error) {
	return Output(ctx, t.ws.runner, Command{
		Program: t.ws.tool("rustup"),
		Args:    args,
		Env:     t.ws.hostEnv(),
		Timeout: toolchainTimeout,
	})
}

// Install installs the channel, or updates it when already installed.
func (t *Toolchain) Install(ctx context.Context) error {
	if _, err := t.rustup(ctx, "toolchain", "install", t.channel, "--profile", "minimal", "--no-self-update"); err != nil {
		return derrors.ToolchainError("install "+t.channel, err)
	}
	return nil
}

// InstalledTargets lists the installed target triples. It returns
// ErrNotInstalled when the channel itself is missing.
func (t *Toolchain) InstalledTargets(ctx context.Context) ([]string, error) {
	lines, err := t.rustup(ctx, "target", "list", "--installed", "--toolchain", t.channel)
	if err != nil {
		for _, l := range lines {
			if strings.Contains(l, "not installed") {
				return nil, derrors.ErrNotInstalled
			}
		}
		return nil, derrors.ToolchainError("list targets", err)
	}
	var targets []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			targets = append(targets, l)
		}
	}
	return targets, nil
}

// AddTarget installs a target triple.
func (t *Toolchain) AddTarget(ctx context.Context, target string) error {
	if _, err := t.rustup(ctx, "target", "add", "--toolchain", t.channel, target); err != nil {
		return derrors.ToolchainError("add target "+target, err)
	}
	return nil
}

// RemoveTarget uninstalls a target triple.
func (t *Toolchain) RemoveTarget(ctx context.Context, target string) error {
	if _, err := t.rustup(ctx, "target", "remove", "--toolchain", t.channel, target); err != nil {
		return derrors.ToolchainError("remove target "+target, err)
	}
	return nil
}

// AddComponent installs an optional toolchain component.
func (t *Toolchain) AddComponent(ctx context.Context, component string) error {
	if _, err := t.rustup(ctx, "component", "add", "--toolchain", t.channel, component); err != nil {
		return derrors.ToolchainError("add component "+component, err)
	}
	return nil
}

// ProbeVersion returns the output lines of the compiler's version query.
func (t *Toolchain) ProbeVersion(ctx context.Context) ([]string, error) {
	var stdout bytes.Buffer
	_, err := Output(ctx, t.ws.runner, Command{
		Program: t.ws.tool("rustc"),
		Args:    withChannel(t.channel, []string{"--version"}),
		Env:     t.ws.hostEnv(),
		Timeout: time.Minute,
		Stdout:  &stdout,
	})
	if err != nil {
		return nil, derrors.ToolchainError("probe version", err)
	}
	out := strings.TrimRight(stdout.String(), "\n")
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CargoMetadata returns the resolved package graph of the package at dir as JSON.
func (t *Toolchain) CargoMetadata(ctx context.Context, dir string) ([]byte, error) {
	var stdout bytes.Buffer
	_, err := Output(ctx, t.ws.runner, Command{
		Program: t.ws.tool("cargo"),
		Args: withChannel(t.channel, []string{
			"metadata", "--format-version", "1", "--manifest-path", filepath.Join(dir, "Cargo.toml"),
		}),
		Env:     t.ws.hostEnv(),
		Dir:     dir,
		Timeout: toolchainTimeout,
		Stdout:  &stdout,
	})
	if err != nil {
		return nil, derrors.SandboxError("load package metadata", err)
	}
	return stdout.Bytes(), nil
}
