package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/google/uuid"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/limits"
)

// DefaultImage is the build environment image used when none is configured.
const DefaultImage = "ghcr.io/rust-lang/crates-build-env/linux-micro"

// Mount binds a host path into the container.
type Mount struct {
	Host      string
	Container string
	ReadOnly  bool
}

// DockerRunner wraps commands in `docker run` with the build's resource limits.
type DockerRunner struct {
	Image string
	// VolumesFrom shares the mounts of the named container instead of binding
	// host paths. Used when the builder itself runs inside docker.
	VolumesFrom string
	Mounts      []Mount
	Limits      limits.Limits
	Exec        Runner
	Logger      *slog.Logger
}

// Run starts a throwaway container for c and kills it on timeout.
func (d *DockerRunner) Run(ctx context.Context, c Command) error {
	name := "pkgdocs-" + uuid.NewString()
	wrapped := Command{
		Program:         "docker",
		Args:            d.args(name, c),
		Timeout:         c.Timeout,
		NoOutputTimeout: c.NoOutputTimeout,
		ProcessLine:     c.ProcessLine,
		Stdout:          c.Stdout,
	}
	err := d.exec().Run(ctx, wrapped)
	if errors.Is(err, derrors.ErrCommandTimeout) {
		// Killing the client leaves the container running.
		kill := Command{Program: "docker", Args: []string{"kill", name}}
		if kerr := d.exec().Run(context.WithoutCancel(ctx), kill); kerr != nil {
			d.logger().Warn("Failed to kill timed out container", "container", name, "error", kerr)
		}
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		exitErr.Program = c.Program
	}
	return err
}

func (d *DockerRunner) args(name string, c Command) []string {
	args := []string{"run", "--rm", "--name", name}
	if d.Limits.Memory > 0 {
		mem := strconv.FormatUint(d.Limits.Memory, 10)
		args = append(args, "--memory", mem, "--memory-swap", mem)
	}
	if d.Limits.CPUs > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(d.Limits.CPUs, 'f', -1, 64))
	}
	if !d.Limits.Networking {
		args = append(args, "--network", "none")
	}
	if d.VolumesFrom != "" {
		args = append(args, "--volumes-from", d.VolumesFrom)
	} else {
		for _, m := range d.Mounts {
			spec := m.Host + ":" + m.Container
			if m.ReadOnly {
				spec += ":ro"
			}
			args = append(args, "-v", spec)
		}
	}
	if c.Dir != "" {
		args = append(args, "-w", c.Dir)
	}
	for _, kv := range envList(c.Env) {
		args = append(args, "-e", kv)
	}
	args = append(args, d.image(), c.Program)
	return append(args, c.Args...)
}

func (d *DockerRunner) image() string {
	if d.Image != "" {
		return d.Image
	}
	return DefaultImage
}

func (d *DockerRunner) exec() Runner {
	if d.Exec != nil {
		return d.Exec
	}
	return ExecRunner{}
}

func (d *DockerRunner) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// currentContainer returns this process's container id when running inside docker.
func currentContainer() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolve container hostname: %w", err)
	}
	return host, nil
}
