package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
	"git.home.luguber.info/inful/pkgdocs/internal/util/fsutil"
)

// Options configures a Workspace.
type Options struct {
	Root                string
	Docker              bool
	Image               string
	RunningInsideDocker bool
	Channel             string
	HTTPClient          *http.Client
	Runner              Runner
	Logger              *slog.Logger
}

// Workspace owns the toolchain installation, the fetched source cache and
// the per-package build directories under one root.
type Workspace struct {
	root         string
	docker       bool
	image        string
	insideDocker bool
	channel      string
	client       *http.Client
	runner       Runner
	logger       *slog.Logger
}

// Open creates the workspace layout under opts.Root.
func Open(opts Options) (*Workspace, error) {
	if opts.Root == "" {
		return nil, derrors.ValidationFailed("workspace", "root is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, derrors.WorkspaceError("resolve root", err)
	}
	w := &Workspace{
		root:         root,
		docker:       opts.Docker,
		image:        opts.Image,
		insideDocker: opts.RunningInsideDocker,
		channel:      opts.Channel,
		client:       opts.HTTPClient,
		runner:       opts.Runner,
		logger:       opts.Logger,
	}
	if w.channel == "" {
		w.channel = "nightly"
	}
	if w.client == nil {
		w.client = &http.Client{Timeout: 5 * time.Minute}
	}
	if w.runner == nil {
		w.runner = ExecRunner{}
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	for _, dir := range []string{w.buildsDir(), w.sourcesDir(), w.CargoHome(), w.RustupHome()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, derrors.WorkspaceError("create "+dir, err)
		}
	}
	return w, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// CargoHome is where the package manager keeps its binaries and registry cache.
func (w *Workspace) CargoHome() string { return filepath.Join(w.root, "cargo-home") }

// RustupHome is where installed toolchains live.
func (w *Workspace) RustupHome() string { return filepath.Join(w.root, "rustup-home") }

func (w *Workspace) buildsDir() string  { return filepath.Join(w.root, "builds") }
func (w *Workspace) sourcesDir() string { return filepath.Join(w.root, "cache", "sources") }

// HTTPClient is shared by registry sources.
func (w *Workspace) HTTPClient() *http.Client { return w.client }

// Toolchain returns the toolchain manager for the configured channel.
func (w *Workspace) Toolchain() *Toolchain {
	return &Toolchain{ws: w, channel: w.channel}
}

// BuildDir returns the build directory for name. Nothing is created until a build runs.
func (w *Workspace) BuildDir(name string) *BuildDir {
	return &BuildDir{ws: w, name: name, path: filepath.Join(w.buildsDir(), name)}
}

// Fetch places src in the source cache and returns its path.
// A source already in the cache is returned as is.
func (w *Workspace) Fetch(ctx context.Context, src Source) (string, error) {
	dir := w.cachePath(src)
	if fsutil.IsDir(dir) {
		return dir, nil
	}
	tmp := dir + ".partial"
	if err := os.RemoveAll(tmp); err != nil {
		return "", derrors.WorkspaceError("clear partial fetch", err)
	}
	if err := os.MkdirAll(tmp, 0o750); err != nil {
		return "", derrors.WorkspaceError("create fetch dir", err)
	}
	w.logger.Debug("Fetching source", slog.String("source", src.String()), logfields.Path(dir))
	if err := src.Fetch(ctx, w, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dir); err != nil {
		_ = os.RemoveAll(tmp)
		return "", derrors.WorkspaceError("commit fetched source", err)
	}
	return dir, nil
}

// PurgeFromCache removes src from the source cache.
func (w *Workspace) PurgeFromCache(src Source) error {
	if err := os.RemoveAll(w.cachePath(src)); err != nil {
		return derrors.WorkspaceError("purge source cache", err)
	}
	return nil
}

func (w *Workspace) cachePath(src Source) string {
	sum := sha256.Sum256([]byte(src.String()))
	return filepath.Join(w.sourcesDir(), hex.EncodeToString(sum[:8]))
}

// tool resolves a toolchain binary, preferring the copy installed in the workspace.
func (w *Workspace) tool(name string) string {
	p := filepath.Join(w.CargoHome(), "bin", name)
	if fsutil.Exists(p) {
		return p
	}
	return name
}

func (w *Workspace) hostEnv() map[string]string {
	return map[string]string{
		"CARGO_HOME":  w.CargoHome(),
		"RUSTUP_HOME": w.RustupHome(),
	}
}

func (w *Workspace) String() string {
	return fmt.Sprintf("workspace(%s, docker=%t)", w.root, w.docker)
}
