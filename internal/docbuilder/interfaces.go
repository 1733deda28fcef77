package docbuilder

import (
	"context"

	"git.home.luguber.info/inful/pkgdocs/internal/limits"
	"git.home.luguber.info/inful/pkgdocs/internal/model"
	"git.home.luguber.info/inful/pkgdocs/internal/sandbox"
)

// Sandbox fetches sources and hands out build directories.
type Sandbox interface {
	Fetch(ctx context.Context, src sandbox.Source) (string, error)
	PurgeFromCache(src sandbox.Source) error
	BuildDir(name string) BuildDir
}

// BuildDir is the scratch directory of one package attempt.
type BuildDir interface {
	Purge() error
	Build(ctx context.Context, sourceDir string, lim limits.Limits, fn func(Build) error) error
}

// Build runs commands against a prepared package.
type Build interface {
	HostSourceDir() string
	HostTargetDir() string
	Run(ctx context.Context, c sandbox.Command) error
}

// Toolchain manages the installed compiler toolchain.
type Toolchain interface {
	InstalledTargets(ctx context.Context) ([]string, error)
	AddTarget(ctx context.Context, target string) error
	RemoveTarget(ctx context.Context, target string) error
	Install(ctx context.Context) error
	AddComponent(ctx context.Context, component string) error
	ProbeVersion(ctx context.Context) ([]string, error)
	CargoMetadata(ctx context.Context, dir string) ([]byte, error)
}

// Database persists build results and serves per-package policy.
type Database interface {
	IsBlacklisted(ctx context.Context, name string) (bool, error)
	IsReleaseBuilt(ctx context.Context, name, version string) (bool, error)
	LimitsFor(ctx context.Context, name string) (limits.Limits, error)
	InsertPackage(ctx context.Context, rec *model.PackageRecord) (int64, error)
	InsertCoverage(ctx context.Context, releaseID int64, cov model.DocCoverage) error
	InsertBuild(ctx context.Context, releaseID int64, outcome model.BuildOutcome) (int64, error)
	UpdatePackageData(ctx context.Context, name string, data model.PackageData) error
	UpsertConfig(ctx context.Context, key string, value any) error
}

// ArtifactStore receives directory trees.
type ArtifactStore interface {
	UploadTree(ctx context.Context, prefix, dir string) ([]model.FileEntry, []string, error)
}

// ReleaseAPI serves upstream registry metadata.
type ReleaseAPI interface {
	GetReleaseData(ctx context.Context, name, version string) (model.ReleaseData, error)
	GetPackageData(ctx context.Context, name string) (model.PackageData, error)
}

// PackageSource enumerates every release known to the registry.
type PackageSource interface {
	Walk(ctx context.Context, fn func(name, version string) error) error
}

// WorkspaceSandbox adapts a sandbox.Workspace to Sandbox.
func WorkspaceSandbox(ws *sandbox.Workspace) Sandbox {
	return workspaceSandbox{ws: ws}
}

type workspaceSandbox struct {
	ws *sandbox.Workspace
}

func (s workspaceSandbox) Fetch(ctx context.Context, src sandbox.Source) (string, error) {
	return s.ws.Fetch(ctx, src)
}

func (s workspaceSandbox) PurgeFromCache(src sandbox.Source) error {
	return s.ws.PurgeFromCache(src)
}

func (s workspaceSandbox) BuildDir(name string) BuildDir {
	return workspaceBuildDir{dir: s.ws.BuildDir(name)}
}

type workspaceBuildDir struct {
	dir *sandbox.BuildDir
}

func (d workspaceBuildDir) Purge() error { return d.dir.Purge() }

func (d workspaceBuildDir) Build(ctx context.Context, sourceDir string, lim limits.Limits, fn func(Build) error) error {
	return d.dir.Build(ctx, sourceDir, lim, func(b *sandbox.Build) error { return fn(b) })
}
