package docbuilder

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/pkgdocs/internal/coverage"
	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/limits"
	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
	"git.home.luguber.info/inful/pkgdocs/internal/metadata"
	"git.home.luguber.info/inful/pkgdocs/internal/model"
	"git.home.luguber.info/inful/pkgdocs/internal/sandbox"
	"git.home.luguber.info/inful/pkgdocs/internal/util/fsutil"
)

// targetResult is the outcome of documenting one target.
type targetResult struct {
	Target  string
	Outcome model.BuildOutcome
	Cargo   *metadata.CargoMetadata
	// DocsProduced holds when the build exited zero and its documentation
	// directory exists. For the default target the directory is the one of the
	// package's library.
	DocsProduced bool
}

// executeBuild documents target. An unsuccessful build is reported through
// the outcome; only failures to run the build at all are returned.
func (b *Builder) executeBuild(ctx context.Context, build Build, target string, isDefault bool, lim limits.Limits, md *metadata.Metadata) (*targetResult, error) {
	started := time.Now()
	raw, err := b.toolchain.CargoMetadata(ctx, build.HostSourceDir())
	if err != nil {
		return nil, derrors.ToolchainError("cargo metadata", err)
	}
	cargo, err := metadata.ParseCargoMetadata(raw)
	if err != nil {
		return nil, derrors.ToolchainError("cargo metadata", err)
	}

	extra := make([]string, 0, 2*len(cargo.RootDependencies())+2)
	for _, dep := range cargo.RootDependencies() {
		extra = append(extra, "--extern-html-root-url", fmt.Sprintf("%s=%s/%s/%s",
			strings.ReplaceAll(dep.Name, "-", "_"), strings.TrimRight(b.opts.DocsURL, "/"), dep.Name, dep.Version))
	}
	extra = append(extra, "--resource-suffix", "-"+b.state.Token)

	cmd, err := b.buildCommand(ctx, target, md, lim, extra)
	if err != nil {
		return nil, err
	}
	logs := newLogStorage(lim.MaxLogSize)
	cmd.ProcessLine = logs.AddLine

	successful := true
	if err := build.Run(ctx, cmd); err != nil {
		if !sandbox.IsCommandFailure(err) {
			return nil, derrors.SandboxError("run documentation build", err)
		}
		b.logger.Info("Documentation build failed", logfields.Target(target), logfields.Error(err))
		logs.AddLine(err.Error())
		successful = false
	}

	var cov *model.DocCoverage
	if successful {
		cov, err = b.extractCoverage(ctx, build, target, md, lim)
		if err != nil {
			return nil, err
		}
	}

	targetDir := build.HostTargetDir()
	if target != metadata.HostTarget && isDefault {
		nested := filepath.Join(targetDir, target, "doc")
		if fsutil.IsDir(nested) {
			b.logger.Debug("Relocating cross-compiled default docs", logfields.Target(target))
			if err := fsutil.MoveDir(nested, filepath.Join(targetDir, "doc")); err != nil {
				return nil, derrors.WorkspaceError("relocate documentation", err)
			}
		}
	}

	res := &targetResult{
		Target: target,
		Cargo:  cargo,
		Outcome: model.BuildOutcome{
			Successful:       successful,
			BuildLog:         logs.String(),
			DocCoverage:      cov,
			ToolchainVersion: b.state.Version,
			BuilderVersion:   b.opts.BuilderVersion,
		},
	}
	if dir := docDir(targetDir, target, isDefault, cargo); successful && dir != "" {
		res.DocsProduced = fsutil.IsDir(dir)
	}
	b.recorder.ObserveTargetBuild(target, time.Since(started), successful)
	return res, nil
}

// docDir is the directory whose existence proves documentation was produced.
func docDir(targetDir, target string, isDefault bool, cargo *metadata.CargoMetadata) string {
	if !isDefault {
		return filepath.Join(targetDir, target, "doc")
	}
	root := cargo.Root()
	if root == nil || root.LibraryName() == "" {
		return ""
	}
	return filepath.Join(targetDir, "doc", root.LibraryName())
}

// extractCoverage runs a coverage pass and aggregates its JSON lines. A
// failing coverage pass keeps whatever was counted before it failed.
func (b *Builder) extractCoverage(ctx context.Context, build Build, target string, md *metadata.Metadata, lim limits.Limits) (*model.DocCoverage, error) {
	cmd, err := b.buildCommand(ctx, target, md, lim, coverage.Flags)
	if err != nil {
		return nil, err
	}
	var agg coverage.Aggregator
	cmd.ProcessLine = agg.AddLine
	if err := build.Run(ctx, cmd); err != nil {
		if !sandbox.IsCommandFailure(err) {
			return nil, derrors.SandboxError("run coverage", err)
		}
		b.logger.Warn("Coverage run failed", logfields.Target(target), logfields.Error(err))
	}
	return agg.Result(), nil
}
