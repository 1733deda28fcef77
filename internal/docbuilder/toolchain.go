package docbuilder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
	"git.home.luguber.info/inful/pkgdocs/internal/metadata"
	"git.home.luguber.info/inful/pkgdocs/internal/util/sets"
)

const formatterComponent = "rustfmt"

// UpdateToolchain converges the installed targets on the default target set,
// updates the toolchain and bootstraps essential files when the version
// changed. It returns the detected version line.
func (b *Builder) UpdateToolchain(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.updateToolchain(ctx); err != nil {
		return "", err
	}
	return b.state.Version, nil
}

func (b *Builder) updateToolchain(ctx context.Context) error {
	// Only the first update of this builder has no recorded version.
	old := b.state.Version
	if old == "" {
		var err error
		if old, err = b.detectVersion(ctx); err != nil {
			b.logger.Debug("No usable toolchain version before update", logfields.Error(err))
		}
	}

	if err := b.reconcileTargets(ctx, metadata.DefaultTargets); err != nil {
		return err
	}

	current, err := b.detectVersion(ctx)
	if err != nil {
		return err
	}
	token, err := VersionToken(current)
	if err != nil {
		return derrors.ToolchainError("parse version", err)
	}
	b.state = ToolchainState{Version: current, Token: token}

	changed := old != current
	b.recorder.IncToolchainUpdate(changed)
	if !changed {
		return nil
	}
	b.logger.Info("Toolchain version changed",
		logfields.Toolchain(current),
		slog.String("previous", old))
	return b.addEssentialFiles(ctx)
}

// reconcileTargets removes undesired targets before the update so the
// package manager never refuses to drop a tracked target, then installs the
// toolchain and adds what is missing in declared order.
func (b *Builder) reconcileTargets(ctx context.Context, desired []string) error {
	installed, err := b.toolchain.InstalledTargets(ctx)
	if err != nil {
		if !errors.Is(err, derrors.ErrNotInstalled) {
			return derrors.ToolchainError("list installed targets", err)
		}
		installed = nil
	}

	want := sets.New(desired...)
	have := sets.New(installed...)
	for _, t := range installed {
		if want.Has(t) {
			continue
		}
		b.logger.Info("Removing toolchain target", logfields.Target(t))
		if err := b.toolchain.RemoveTarget(ctx, t); err != nil {
			return derrors.ToolchainError("remove target "+t, err)
		}
	}

	if err := b.toolchain.Install(ctx); err != nil {
		return derrors.ToolchainError("install", err)
	}

	for _, t := range desired {
		if have.Has(t) {
			continue
		}
		b.logger.Info("Adding toolchain target", logfields.Target(t))
		if err := b.toolchain.AddTarget(ctx, t); err != nil {
			return derrors.ToolchainError("add target "+t, err)
		}
		have.Add(t)
	}

	if err := b.toolchain.AddComponent(ctx, formatterComponent); err != nil {
		tolerated := derrors.Tolerated(derrors.CategoryToolchain, "install "+formatterComponent, err)
		b.logger.Warn("Failed to install formatter component, continuing", logfields.Error(tolerated))
	}
	return nil
}

// detectVersion runs the version probe, which must print exactly one line.
func (b *Builder) detectVersion(ctx context.Context) (string, error) {
	lines, err := b.toolchain.ProbeVersion(ctx)
	if err != nil {
		return "", derrors.ToolchainError("probe version", err)
	}
	if len(lines) != 1 || strings.TrimSpace(lines[0]) == "" {
		return "", derrors.ToolchainError("probe version",
			fmt.Errorf("%w: got %d lines", derrors.ErrInvalidVersionOutput, len(lines)))
	}
	version := strings.TrimSpace(lines[0])
	b.logger.Debug("Detected toolchain", logfields.Toolchain(version))
	return version, nil
}
