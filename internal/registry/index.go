// Package registry reads the package index and queries the registry API for
// release metadata.
package registry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-git/v5"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
)

// IndexEntry is one line of an index file.
type IndexEntry struct {
	Name    string `json:"name"`
	Version string `json:"vers"`
	Yanked  bool   `json:"yanked"`
}

// Index is a checkout of the registry index repository.
type Index struct {
	Path string
	// IncludeYanked also yields yanked releases.
	IncludeYanked bool
	// Constraint, when set, limits the versions yielded, e.g. ">= 1.0".
	Constraint *semver.Constraints
}

// Update clones the index from url, or pulls when a checkout already exists.
func (ix *Index) Update(ctx context.Context, url string) error {
	repo, err := git.PlainOpen(ix.Path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		slog.Info("Cloning package index", logfields.URL(url), logfields.Path(ix.Path))
		if _, err := git.PlainCloneContext(ctx, ix.Path, false, &git.CloneOptions{URL: url, Depth: 1}); err != nil {
			return derrors.RegistryError(url, err)
		}
		return nil
	}
	if err != nil {
		return derrors.WorkspaceError("open index", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return derrors.WorkspaceError("open index worktree", err)
	}
	if err := wt.PullContext(ctx, &git.PullOptions{Force: true}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return derrors.RegistryError(url, err)
	}
	return nil
}

// Walk calls fn for every release in the index, ordered by package name and
// then by ascending version. Lines that fail to parse are skipped.
// An error returned by fn stops the walk.
func (ix *Index) Walk(ctx context.Context, fn func(name, version string) error) error {
	var files []string
	err := filepath.WalkDir(ix.Path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && p != ix.Path {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || name == "config.json" {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return derrors.WorkspaceError("walk index", err)
	}
	sort.Slice(files, func(i, j int) bool { return filepath.Base(files[i]) < filepath.Base(files[j]) })

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := ix.readFile(f)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := fn(e.Name, e.Version); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ix *Index) readFile(path string) ([]IndexEntry, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from walking the index checkout
	if err != nil {
		return nil, derrors.WorkspaceError("open index file", err)
	}
	defer func() { _ = f.Close() }()

	type versioned struct {
		IndexEntry
		v *semver.Version
	}
	var entries []versioned
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e IndexEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil || e.Name == "" {
			continue
		}
		if e.Yanked && !ix.IncludeYanked {
			continue
		}
		v, err := semver.NewVersion(e.Version)
		if err != nil {
			slog.Debug("Skipping unparseable version", logfields.Package(e.Name), logfields.Version(e.Version))
			continue
		}
		if ix.Constraint != nil && !ix.Constraint.Check(v) {
			continue
		}
		entries = append(entries, versioned{e, v})
	}
	if err := scanner.Err(); err != nil {
		return nil, derrors.WorkspaceError(fmt.Sprintf("read index file %s", path), err)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].v.LessThan(entries[j].v) })
	out := make([]IndexEntry, len(entries))
	for i, e := range entries {
		out[i] = e.IndexEntry
	}
	return out, nil
}
