package docbuilder

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/events"
	"git.home.luguber.info/inful/pkgdocs/internal/limits"
	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
	"git.home.luguber.info/inful/pkgdocs/internal/metadata"
	"git.home.luguber.info/inful/pkgdocs/internal/metrics"
	"git.home.luguber.info/inful/pkgdocs/internal/model"
	"git.home.luguber.info/inful/pkgdocs/internal/readme"
	"git.home.luguber.info/inful/pkgdocs/internal/sandbox"
	"git.home.luguber.info/inful/pkgdocs/internal/util/fsutil"
	"git.home.luguber.info/inful/pkgdocs/internal/util/sets"
	"git.home.luguber.info/inful/pkgdocs/internal/workspace"
)

// Storage prefixes of uploaded documentation and sources.
const (
	DocsPrefix    = "rustdoc"
	SourcesPrefix = "sources"
)

type buildRequest struct {
	name    string
	version string
	src     sandbox.Source
	// force bypasses the already-attempted check. Blacklisting still applies.
	force bool
	// sourceDir is set when the caller already fetched src. The attempt then
	// owns the cache entry and purges it on every path, skips included.
	sourceDir string
	// reconciled skips the toolchain update when the caller just ran it.
	reconciled bool
}

// packageReport collects what one attempt produced until it is persisted.
type packageReport struct {
	name          string
	version       string
	sourceDir     string
	cargo         *metadata.CargoMetadata
	outcome       model.BuildOutcome
	defaultTarget string
	targets       []string
	hasDocs       bool
	compression   sets.Set[string]
}

func (r *packageReport) root() *metadata.Package {
	if r.cargo == nil {
		return nil
	}
	return r.cargo.Root()
}

// BuildPackage builds a registry release and reports whether its default
// target documented successfully. Releases that were already attempted or
// are blacklisted are skipped and report false without error.
func (b *Builder) BuildPackage(ctx context.Context, name, version string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buildPackage(ctx, buildRequest{
		name:    name,
		version: version,
		src:     sandbox.RegistrySource{Name: name, Version: version, DownloadURL: b.opts.DownloadURL},
	})
}

// BuildLocalPackage builds the package rooted at dir. Name and version come
// from the package metadata. Local builds always run, even when the release
// was attempted before.
func (b *Builder) BuildLocalPackage(ctx context.Context, dir string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return false, derrors.WorkspaceError("resolve local path", err)
	}
	if err := b.updateToolchain(ctx); err != nil {
		return false, err
	}
	root, err := b.loadRootPackage(ctx, abs)
	if err != nil {
		return false, err
	}
	return b.buildPackage(ctx, buildRequest{
		name:       root.Name,
		version:    root.Version,
		src:        sandbox.LocalSource{Path: abs},
		force:      true,
		reconciled: true,
	})
}

// BuildGitPackage builds the package found in a git repository at rev.
func (b *Builder) BuildGitPackage(ctx context.Context, url, rev string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.updateToolchain(ctx); err != nil {
		return false, err
	}
	src := sandbox.GitSource{URL: url, Rev: rev}
	dir, err := b.sandbox.Fetch(ctx, src)
	if err != nil {
		b.purgeSource(src, b.logger)
		return false, err
	}
	root, err := b.loadRootPackage(ctx, dir)
	if err != nil {
		b.purgeSource(src, b.logger)
		return false, err
	}
	return b.buildPackage(ctx, buildRequest{
		name:       root.Name,
		version:    root.Version,
		src:        src,
		force:      true,
		sourceDir:  dir,
		reconciled: true,
	})
}

// purgeSource drops a fetched source that no attempt took over.
func (b *Builder) purgeSource(src sandbox.Source, log *slog.Logger) {
	if err := b.sandbox.PurgeFromCache(src); err != nil {
		log.Warn("Failed to purge fetched source", logfields.Error(derrors.WorkspaceError("purge source cache", err)))
	}
}

func (b *Builder) loadRootPackage(ctx context.Context, dir string) (*metadata.Package, error) {
	raw, err := b.toolchain.CargoMetadata(ctx, dir)
	if err != nil {
		return nil, derrors.ToolchainError("cargo metadata", err)
	}
	cargo, err := metadata.ParseCargoMetadata(raw)
	if err != nil {
		return nil, derrors.ToolchainError("cargo metadata", err)
	}
	return cargo.Root(), nil
}

// ShouldBuild reports whether a release was neither attempted by this
// builder nor recorded as built.
func (b *Builder) ShouldBuild(ctx context.Context, name, version string) (bool, error) {
	if b.cache.Has(name, version) {
		return false, nil
	}
	built, err := b.db.IsReleaseBuilt(ctx, name, version)
	if err != nil {
		return false, derrors.DatabaseError("check release", err)
	}
	return !built, nil
}

func (b *Builder) gate(ctx context.Context, req buildRequest) error {
	if !req.force {
		ok, err := b.ShouldBuild(ctx, req.name, req.version)
		if err != nil {
			return err
		}
		if !ok {
			return derrors.Skipped(req.name, req.version, derrors.ErrAlreadyBuilt)
		}
	}
	blacklisted, err := b.db.IsBlacklisted(ctx, req.name)
	if err != nil {
		return derrors.DatabaseError("check blacklist", err)
	}
	if blacklisted {
		return derrors.Skipped(req.name, req.version, derrors.ErrBlacklisted)
	}
	return nil
}

func (b *Builder) buildPackage(ctx context.Context, req buildRequest) (successful bool, err error) {
	buildID := uuid.NewString()
	log := b.logger.With(logfields.BuildID(buildID), logfields.Package(req.name), logfields.Version(req.version))

	owned := false
	if req.sourceDir != "" {
		defer func() {
			if !owned {
				b.purgeSource(req.src, log)
			}
		}()
	}

	if err := b.gate(ctx, req); err != nil {
		if derrors.IsSkip(err) {
			log.Info("Skipping package", logfields.Error(err))
			return false, nil
		}
		return false, err
	}

	if !req.reconciled {
		if err := b.updateToolchain(ctx); err != nil {
			return false, err
		}
	}

	lim, err := b.db.LimitsFor(ctx, req.name)
	if err != nil {
		return false, derrors.DatabaseError("look up limits", err)
	}
	lim = lim.WithCPUs(b.opts.CPULimit)

	log.Info("Building package")
	started := time.Now()
	bd := b.sandbox.BuildDir(req.name + "-" + req.version)
	staging := workspace.NewManager(b.opts.StagingDir, "pkgdocs-docs")
	owned = true
	defer func() {
		err = errors.Join(err, b.cleanup(bd, req.src, staging, log))
		b.recorder.ObserveBuildDuration(time.Since(started))
	}()

	if err := bd.Purge(); err != nil {
		return false, err
	}
	dir := req.sourceDir
	if dir == "" {
		if dir, err = b.sandbox.Fetch(ctx, req.src); err != nil {
			return false, err
		}
	}
	if err := staging.Create(); err != nil {
		return false, derrors.WorkspaceError("create staging", err)
	}

	var report *packageReport
	ran := false
	err = bd.Build(ctx, dir, lim, func(build Build) error {
		ran = true
		r, err := b.documentPackage(ctx, build, req, lim, staging.GetPath(), log)
		if err != nil {
			return err
		}
		r.sourceDir = build.HostSourceDir()
		report = r
		return b.finish(ctx, r, buildID, log)
	})
	if err != nil {
		if ran || derrors.KindOf(err) != derrors.KindBuildFailure {
			return false, err
		}
		log.Warn("Dependencies could not be prepared", logfields.Error(err))
		report = b.preparationFailure(ctx, req, dir, err)
		if err := b.finish(ctx, report, buildID, log); err != nil {
			return false, err
		}
	}
	if report == nil {
		return false, derrors.InternalError("build finished without a report", nil)
	}
	return report.outcome.Successful, nil
}

// documentPackage builds the default target and, when it produced docs, the
// additional targets up to the package's limit.
func (b *Builder) documentPackage(ctx context.Context, build Build, req buildRequest, lim limits.Limits, staging string, log *slog.Logger) (*packageReport, error) {
	md, err := metadata.FromCrateRoot(build.HostSourceDir())
	if err != nil {
		return nil, derrors.WorkspaceError("load package metadata", err)
	}
	targets := md.Targets()

	res, err := b.executeBuild(ctx, build, targets.Default, true, lim, md)
	if err != nil {
		return nil, err
	}
	report := &packageReport{
		name:          req.name,
		version:       req.version,
		cargo:         res.Cargo,
		outcome:       res.Outcome,
		defaultTarget: targets.Default,
		hasDocs:       res.DocsProduced,
		compression:   sets.New[string](),
	}
	if !report.hasDocs {
		return report, nil
	}

	if err := copyDocs(build.HostTargetDir(), staging, targets.Default, true); err != nil {
		return nil, err
	}
	report.targets = append(report.targets, targets.Default)

	others := targets.Others
	if n := max(lim.Targets, 0); len(others) > n {
		others = others[:n]
	}
	for _, target := range others {
		log.Debug("Building additional target", logfields.Target(target))
		tr, err := b.executeBuild(ctx, build, target, false, lim, md)
		if err != nil {
			return nil, err
		}
		if !tr.DocsProduced {
			continue
		}
		if err := copyDocs(build.HostTargetDir(), staging, target, false); err != nil {
			return nil, err
		}
		report.targets = append(report.targets, target)
	}

	prefix := path.Join(DocsPrefix, req.name, req.version)
	_, algs, err := b.store.UploadTree(ctx, prefix, staging)
	if err != nil {
		return nil, derrors.StorageError("upload documentation", err)
	}
	report.compression.Extend(sets.New(algs...))
	return report, nil
}

// preparationFailure describes an attempt whose dependencies could not be
// fetched. It is persisted like any other failed build.
func (b *Builder) preparationFailure(ctx context.Context, req buildRequest, dir string, cause error) *packageReport {
	report := &packageReport{
		name:          req.name,
		version:       req.version,
		sourceDir:     dir,
		defaultTarget: metadata.HostTarget,
		compression:   sets.New[string](),
		outcome: model.BuildOutcome{
			Successful:       false,
			BuildLog:         cause.Error(),
			ToolchainVersion: b.state.Version,
			BuilderVersion:   b.opts.BuilderVersion,
		},
	}
	if md, err := metadata.FromCrateRoot(dir); err == nil {
		report.defaultTarget = md.Targets().Default
	}
	if raw, err := b.toolchain.CargoMetadata(ctx, dir); err == nil {
		if cargo, err := metadata.ParseCargoMetadata(raw); err == nil {
			report.cargo = cargo
		}
	}
	return report
}

// finish archives the source, classifies the outcome and persists it.
func (b *Builder) finish(ctx context.Context, r *packageReport, buildID string, log *slog.Logger) error {
	prefix := path.Join(SourcesPrefix, r.name, r.version)
	files, algs, err := b.store.UploadTree(ctx, prefix, r.sourceDir)
	if err != nil {
		return derrors.StorageError("upload sources", err)
	}
	r.compression.Extend(sets.New(algs...))

	root := r.root()
	switch {
	case r.outcome.Successful:
		b.recorder.IncBuildOutcome(metrics.OutcomeSuccessful)
	case root == nil || root.IsLibrary():
		b.recorder.IncBuildOutcome(metrics.OutcomeFailed)
	default:
		b.recorder.IncBuildOutcome(metrics.OutcomeNonLibrary)
	}

	rec := b.packageRecord(r, files, log)
	rec.Release = b.releaseData(ctx, r.name, r.version, log)

	releaseID, err := b.db.InsertPackage(ctx, rec)
	if err != nil {
		return derrors.DatabaseError("insert package", err)
	}
	if r.outcome.DocCoverage != nil {
		if err := b.db.InsertCoverage(ctx, releaseID, *r.outcome.DocCoverage); err != nil {
			return derrors.DatabaseError("insert coverage", err)
		}
	}
	if _, err := b.db.InsertBuild(ctx, releaseID, r.outcome); err != nil {
		return derrors.DatabaseError("insert build", err)
	}
	if err := b.refreshPackageData(ctx, r.name, log); err != nil {
		return err
	}

	ev := events.BuildFinished{
		BuildID:    buildID,
		Name:       r.name,
		Version:    r.version,
		Successful: r.outcome.Successful,
		Targets:    r.targets,
		Timestamp:  time.Now().UTC(),
	}
	if err := b.events.PublishBuildFinished(ctx, ev); err != nil {
		log.Warn("Failed to publish build event",
			logfields.Error(derrors.Tolerated(derrors.CategoryNetwork, "publish build event", err)))
	}

	b.cache.Add(r.name, r.version)
	log.Info("Package build finished",
		slog.Bool("successful", r.outcome.Successful),
		slog.Bool("has_docs", r.hasDocs),
		logfields.Count(len(r.targets)))
	return nil
}

func (b *Builder) packageRecord(r *packageReport, files []model.FileEntry, log *slog.Logger) *model.PackageRecord {
	rec := &model.PackageRecord{
		Name:          r.name,
		Version:       r.version,
		DefaultTarget: r.defaultTarget,
		DocTargets:    r.targets,
		HasDocs:       r.hasDocs,
		HasExamples:   fsutil.IsDir(filepath.Join(r.sourceDir, "examples")),
		Successful:    r.outcome.Successful,
		Files:         files,
		Compression:   sets.Sorted(r.compression),
	}
	if root := r.root(); root != nil {
		rec.Description = root.Description
		rec.License = root.License
		rec.Repository = root.Repository
		rec.Keywords = root.Keywords
		rec.Dependencies = root.DeclaredDependencies()
		rec.IsLibrary = root.IsLibrary()
	}

	manifest, err := metadata.LoadManifest(r.sourceDir)
	if err != nil {
		log.Debug("No manifest for package record", logfields.Error(err))
		return rec
	}
	if rec.Description == "" {
		rec.Description = manifest.Package.Description
	}
	if rec.License == "" {
		rec.License = manifest.Package.License
	}
	if rec.Repository == "" {
		rec.Repository = manifest.Package.Repository
	}
	rel := manifest.ReadmePath()
	if manifest.Package.Readme == nil {
		rel = "README.md"
	}
	html, err := readme.Load(r.sourceDir, rel)
	if err != nil {
		log.Warn("Failed to render readme", logfields.Error(err))
	}
	rec.ReadmeHTML = html
	if rec.Description == "" {
		rec.Description = readme.Summary(html)
	}
	return rec
}

// releaseData fetches upstream release metadata, falling back to defaults.
func (b *Builder) releaseData(ctx context.Context, name, version string, log *slog.Logger) model.ReleaseData {
	if b.api == nil {
		return model.ReleaseData{}
	}
	data, err := b.api.GetReleaseData(ctx, name, version)
	if err != nil {
		log.Warn("Using default release data",
			logfields.Error(derrors.Tolerated(derrors.CategoryRegistry, "release data", err)))
		return model.ReleaseData{}
	}
	return data
}

// refreshPackageData updates the mutable name-level metadata. Only a failed
// database write is returned.
func (b *Builder) refreshPackageData(ctx context.Context, name string, log *slog.Logger) error {
	if b.api == nil {
		return nil
	}
	data, err := b.api.GetPackageData(ctx, name)
	if err != nil {
		log.Warn("Skipping package data refresh",
			logfields.Error(derrors.Tolerated(derrors.CategoryRegistry, "package data", err)))
		return nil
	}
	if err := b.db.UpdatePackageData(ctx, name, data); err != nil {
		return derrors.DatabaseError("update package data", err)
	}
	return nil
}

// cleanup releases everything an attempt acquired. It runs exactly once per
// attempt, on every exit path.
func (b *Builder) cleanup(bd BuildDir, src sandbox.Source, staging *workspace.Manager, log *slog.Logger) error {
	var errs []error
	if err := bd.Purge(); err != nil {
		errs = append(errs, err)
	}
	if err := b.sandbox.PurgeFromCache(src); err != nil {
		errs = append(errs, derrors.WorkspaceError("purge source cache", err))
	}
	if err := staging.Cleanup(); err != nil {
		errs = append(errs, derrors.WorkspaceError("cleanup staging", err))
	}
	if err := errors.Join(errs...); err != nil {
		log.Error("Cleanup failed", logfields.Error(err))
		return err
	}
	return nil
}
