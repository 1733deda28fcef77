package sandbox

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/limits"
	"git.home.luguber.info/inful/pkgdocs/internal/util/fsutil"
)

const (
	containerWorkdir   = "/opt/rustwide/workdir"
	containerTarget    = "/opt/rustwide/target"
	containerCargoHome = "/opt/rustwide/cargo-home"
	containerRustup    = "/opt/rustwide/rustup-home"
)

// BuildDir is the scratch directory of one package. It holds a copy of the
// source and the build output.
type BuildDir struct {
	ws   *Workspace
	name string
	path string
}

// Path returns the host path of the build directory.
func (b *BuildDir) Path() string { return b.path }

// Purge removes everything in the build directory.
func (b *BuildDir) Purge() error {
	if err := os.RemoveAll(b.path); err != nil {
		return derrors.WorkspaceError("purge build dir "+b.name, err)
	}
	return nil
}

// Build copies sourceDir into the build directory, fetches the package's
// dependencies with network access, then calls fn with a handle that runs
// commands under lim.
func (b *BuildDir) Build(ctx context.Context, sourceDir string, lim limits.Limits, fn func(*Build) error) error {
	build := &Build{
		ws:     b.ws,
		source: filepath.Join(b.path, "source"),
		target: filepath.Join(b.path, "target"),
		limits: lim,
	}
	if err := os.RemoveAll(build.source); err != nil {
		return derrors.WorkspaceError("clear build source", err)
	}
	err := fsutil.CopyDir(sourceDir, build.source, func(rel string, d fs.DirEntry) bool {
		return d.IsDir() && rel == "target"
	})
	if err != nil {
		return derrors.WorkspaceError("copy build source", err)
	}
	if err := os.MkdirAll(build.target, 0o750); err != nil {
		return derrors.WorkspaceError("create target dir", err)
	}
	if err := build.prepare(ctx); err != nil {
		return err
	}
	return fn(build)
}

// Build is a running build of one package.
type Build struct {
	ws     *Workspace
	source string
	target string
	limits limits.Limits
}

// HostSourceDir is the host path of the package source.
func (b *Build) HostSourceDir() string { return b.source }

// HostTargetDir is the host path of the build output.
func (b *Build) HostTargetDir() string { return b.target }

// prepare resolves and downloads dependencies before the network is cut off.
func (b *Build) prepare(ctx context.Context) error {
	manifest := filepath.Join(b.source, "Cargo.toml")
	steps := [][]string{{"fetch", "--manifest-path", manifest}}
	if !fsutil.Exists(filepath.Join(b.source, "Cargo.lock")) {
		steps = append([][]string{{"generate-lockfile", "--manifest-path", manifest}}, steps...)
	}
	for _, args := range steps {
		c := Command{
			Program: b.ws.tool("cargo"),
			Args:    withChannel(b.ws.channel, args),
			Env:     b.ws.hostEnv(),
			Dir:     b.source,
			Timeout: b.limits.Timeout,
		}
		if err := b.ws.runner.Run(ctx, c); err != nil {
			wrapped := derrors.SandboxError("prepare "+args[0], err)
			if IsCommandFailure(err) {
				return wrapped.AsKind(derrors.KindBuildFailure)
			}
			return wrapped
		}
	}
	return nil
}

// Run executes c against the build. Docker builds run with the build's
// resource limits. Native builds only get the wall-clock timeout.
func (b *Build) Run(ctx context.Context, c Command) error {
	c.Args = withChannel(b.ws.channel, append([]string{}, c.Args...))
	env := make(map[string]string, len(c.Env)+3)
	for k, v := range c.Env {
		env[k] = v
	}

	if !b.ws.docker {
		c.Program = b.ws.tool(c.Program)
		for k, v := range b.ws.hostEnv() {
			env[k] = v
		}
		env["CARGO_TARGET_DIR"] = b.target
		c.Env = env
		if c.Dir == "" {
			c.Dir = b.source
		}
		return b.ws.runner.Run(ctx, c)
	}

	runner := &DockerRunner{
		Image:  b.ws.image,
		Limits: b.limits,
		Exec:   b.ws.runner,
		Logger: b.ws.logger,
	}
	workdir, target, cargoHome, rustupHome := containerWorkdir, containerTarget, containerCargoHome, containerRustup
	if b.ws.insideDocker {
		id, err := currentContainer()
		if err != nil {
			return derrors.SandboxError("resolve current container", err)
		}
		runner.VolumesFrom = id
		workdir, target, cargoHome, rustupHome = b.source, b.target, b.ws.CargoHome(), b.ws.RustupHome()
	} else {
		runner.Mounts = []Mount{
			{Host: b.source, Container: workdir},
			{Host: b.target, Container: target},
			{Host: b.ws.CargoHome(), Container: cargoHome, ReadOnly: true},
			{Host: b.ws.RustupHome(), Container: rustupHome, ReadOnly: true},
		}
	}
	env["CARGO_TARGET_DIR"] = target
	env["CARGO_HOME"] = cargoHome
	env["RUSTUP_HOME"] = rustupHome
	c.Env = env
	c.Dir = workdir
	c.Program = filepath.Join(cargoHome, "bin", c.Program)
	return runner.Run(ctx, c)
}

func withChannel(channel string, args []string) []string {
	if channel == "" {
		return args
	}
	return append([]string{fmt.Sprintf("+%s", channel)}, args...)
}
