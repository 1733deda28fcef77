package sandbox

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
	"git.home.luguber.info/inful/pkgdocs/internal/util/fsutil"
)

// Source is a package source tree that can be fetched into the workspace.
type Source interface {
	// Fetch writes the source tree into dest, an existing empty directory.
	Fetch(ctx context.Context, ws *Workspace, dest string) error
	String() string
}

// RegistrySource is a published package archive.
type RegistrySource struct {
	Name        string
	Version     string
	DownloadURL string
}

func (s RegistrySource) String() string { return "registry:" + s.Name + "@" + s.Version }

// URL is the archive download location.
func (s RegistrySource) URL() string {
	return fmt.Sprintf("%s/%s/%s-%s.crate", strings.TrimRight(s.DownloadURL, "/"), s.Name, s.Name, s.Version)
}

// Fetch downloads and unpacks the archive, dropping its top-level directory.
func (s RegistrySource) Fetch(ctx context.Context, ws *Workspace, dest string) error {
	url := s.URL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return derrors.RegistryError(url, err)
	}
	resp, err := ws.HTTPClient().Do(req)
	if err != nil {
		return derrors.NetworkTimeout(url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return derrors.RegistryError(url, fmt.Errorf("unexpected status %s", resp.Status))
	}
	if err := unpackCrate(resp.Body, dest, s.Name+"-"+s.Version); err != nil {
		return derrors.RegistryError(url, err)
	}
	ws.logger.Debug("Downloaded package archive", logfields.URL(url), logfields.Path(dest))
	return nil
}

// unpackCrate extracts a package archive into dest. Every entry must live
// under the root directory; the root itself is dropped.
func unpackCrate(r io.Reader, dest, root string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		name := filepath.ToSlash(filepath.Clean(hdr.Name))
		if name == ".." || strings.HasPrefix(name, "../") || path.IsAbs(name) {
			return fmt.Errorf("archive entry escapes root: %s", hdr.Name)
		}
		first, rest, _ := strings.Cut(name, "/")
		if first != root {
			return fmt.Errorf("archive entry outside %s: %s", root, hdr.Name)
		}
		if rest == "" {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(rest))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return err
			}
			mode := fs.FileMode(hdr.Mode).Perm() | 0o600
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode) // #nosec G304 -- target checked above
			if err != nil {
				return err
			}
			// #nosec G110 -- archive size is bounded by the registry
			if _, err := io.Copy(f, tr); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}
}

// LocalSource is a source tree on the host filesystem.
type LocalSource struct {
	Path string
}

func (s LocalSource) String() string { return "local:" + s.Path }

// Fetch copies the tree, leaving out build output and VCS metadata.
func (s LocalSource) Fetch(_ context.Context, _ *Workspace, dest string) error {
	if !fsutil.IsDir(s.Path) {
		return derrors.WorkspaceError("fetch local source", fmt.Errorf("%s is not a directory", s.Path))
	}
	err := fsutil.CopyDir(s.Path, dest, func(rel string, d fs.DirEntry) bool {
		return d.IsDir() && (rel == "target" || rel == ".git")
	})
	if err != nil {
		return derrors.WorkspaceError("copy local source", err)
	}
	return nil
}

// GitSource is a repository checked out at a revision.
type GitSource struct {
	URL string
	Rev string
}

func (s GitSource) String() string { return "git:" + s.URL + "#" + s.Rev }

// Fetch clones the repository and checks out Rev. The .git directory is removed afterwards.
func (s GitSource) Fetch(ctx context.Context, ws *Workspace, dest string) error {
	ws.logger.Debug("Cloning repository", logfields.URL(s.URL), slog.String("rev", s.Rev))
	repo, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{URL: s.URL})
	if err != nil {
		return derrors.Wrap(err, derrors.CategoryNetwork, derrors.SeverityError, "clone "+s.URL)
	}
	if s.Rev != "" {
		hash, err := repo.ResolveRevision(plumbing.Revision(s.Rev))
		if err != nil {
			return derrors.ValidationFailed("rev", fmt.Sprintf("cannot resolve %q: %v", s.Rev, err))
		}
		wt, err := repo.Worktree()
		if err != nil {
			return derrors.WorkspaceError("open worktree", err)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
			return derrors.WorkspaceError("checkout "+s.Rev, err)
		}
	}
	if err := os.RemoveAll(filepath.Join(dest, git.GitDirName)); err != nil {
		return derrors.WorkspaceError("remove git metadata", err)
	}
	return nil
}
