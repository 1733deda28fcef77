package docbuilder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/limits"
	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
	"git.home.luguber.info/inful/pkgdocs/internal/metadata"
	"git.home.luguber.info/inful/pkgdocs/internal/sandbox"
	"git.home.luguber.info/inful/pkgdocs/internal/util/fsutil"
	"git.home.luguber.info/inful/pkgdocs/internal/workspace"
)

// Essential files are shared by every documentation page and are uploaded
// once per toolchain version instead of once per package.
var (
	EssentialFilesVersioned = []string{
		"brush.svg",
		"wheel.svg",
		"down-arrow.svg",
		"dark.css",
		"light.css",
		"ayu.css",
		"main.js",
		"normalize.css",
		"rustdoc.css",
		"settings.css",
		"settings.js",
		"storage.js",
		"theme.js",
		"source-script.js",
		"noscript.css",
		"rust-logo.png",
	}
	EssentialFilesUnversioned = []string{
		"FiraSans-Medium.woff",
		"FiraSans-Regular.woff",
		"SourceCodePro-Regular.woff",
		"SourceCodePro-Semibold.woff",
		"SourceSerifPro-Bold.ttf.woff",
		"SourceSerifPro-Regular.ttf.woff",
		"SourceSerifPro-It.ttf.woff",
	}
)

const (
	// DummyPackageName is a library that always documents successfully.
	DummyPackageName    = "empty-library"
	DummyPackageVersion = "1.0.0"

	// ConfigToolchainVersion is the config key holding the version the
	// uploaded essential files belong to.
	ConfigToolchainVersion = "rustc_version"
)

// versionedName inserts token between base name and extension.
func versionedName(file, token string) string {
	i := strings.LastIndexByte(file, '.')
	if i < 0 {
		return file + "-" + token
	}
	return file[:i] + "-" + token + file[i:]
}

var versionedFile = regexp.MustCompile(`^(.+)-\d{8}-\d+\.\d+\.\d+(?:-[\w.]+)?-\w+(\.\w+)$`)

// isEssentialFile reports whether name is an essential file of any version.
// Such files are uploaded by the bootstrap, not with every package.
func isEssentialFile(name string) bool {
	for _, f := range EssentialFilesUnversioned {
		if name == f {
			return true
		}
	}
	m := versionedFile.FindStringSubmatch(name)
	if m == nil {
		return false
	}
	base := m[1] + m[2]
	for _, f := range EssentialFilesVersioned {
		if base == f {
			return true
		}
	}
	return false
}

// AddEssentialFiles builds the reference package with the current toolchain
// and uploads its shared static files.
func (b *Builder) AddEssentialFiles(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addEssentialFiles(ctx)
}

func (b *Builder) addEssentialFiles(ctx context.Context) (err error) {
	current, err := b.detectVersion(ctx)
	if err != nil {
		return err
	}
	token, err := VersionToken(current)
	if err != nil {
		return derrors.ToolchainError("parse version", err)
	}
	b.state = ToolchainState{Version: current, Token: token}

	log := b.logger.With(logfields.Toolchain(current), logfields.Stage("essential-files"))
	log.Info("Building reference package for essential files")

	lim := limits.Default().WithCPUs(b.opts.CPULimit)
	bd := b.sandbox.BuildDir("essential-files-" + token)
	src := sandbox.RegistrySource{Name: DummyPackageName, Version: DummyPackageVersion, DownloadURL: b.opts.DownloadURL}
	defer func() {
		if perr := bd.Purge(); perr != nil {
			err = errors.Join(err, perr)
		}
		if perr := b.sandbox.PurgeFromCache(src); perr != nil {
			err = errors.Join(err, derrors.WorkspaceError("purge source cache", perr))
		}
	}()

	if err := bd.Purge(); err != nil {
		return err
	}
	dir, err := b.sandbox.Fetch(ctx, src)
	if err != nil {
		return err
	}

	return bd.Build(ctx, dir, lim, func(build Build) error {
		md, err := metadata.FromCrateRoot(build.HostSourceDir())
		if err != nil {
			return derrors.WorkspaceError("load reference package metadata", err)
		}
		res, err := b.executeBuild(ctx, build, metadata.HostTarget, true, lim, md)
		if err != nil {
			return err
		}
		if !res.Outcome.Successful {
			return derrors.ToolchainError("build reference package",
				fmt.Errorf("%w for %s", derrors.ErrDummyBuildFailed, current))
		}

		staging := workspace.NewManager(b.opts.StagingDir, "essential-files")
		if err := staging.Create(); err != nil {
			return derrors.WorkspaceError("create staging", err)
		}
		defer func() { _ = staging.Cleanup() }()

		log.Info("Copying essential files")
		if err := copyEssentialFiles(filepath.Join(build.HostTargetDir(), "doc"), staging.GetPath(), token); err != nil {
			return err
		}
		if _, _, err := b.store.UploadTree(ctx, "", staging.GetPath()); err != nil {
			return derrors.StorageError("upload essential files", err)
		}
		if err := b.db.UpsertConfig(ctx, ConfigToolchainVersion, current); err != nil {
			return derrors.DatabaseError("store toolchain version", err)
		}
		return nil
	})
}

func copyEssentialFiles(src, dst, token string) error {
	names := make([]string, 0, len(EssentialFilesVersioned)+len(EssentialFilesUnversioned))
	for _, f := range EssentialFilesVersioned {
		names = append(names, versionedName(f, token))
	}
	names = append(names, EssentialFilesUnversioned...)

	for _, name := range names {
		from := filepath.Join(src, name)
		if err := fsutil.CopyFile(from, filepath.Join(dst, name)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return derrors.ToolchainError("copy essential files",
					fmt.Errorf("%w: %s", derrors.ErrEssentialFileMissing, name))
			}
			return derrors.WorkspaceError("copy essential file "+name, err)
		}
	}
	return nil
}
