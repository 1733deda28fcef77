package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgdocs/internal/db"
	"git.home.luguber.info/inful/pkgdocs/internal/model"
	"git.home.luguber.info/inful/pkgdocs/internal/storage"
)

// workspaceCLI points a CLI at a config whose workspace is a fresh temp dir and
// captures command output.
func workspaceCLI(t *testing.T) (*CLI, string, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pkgdocs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workspace: "+dir+"\nlogging:\n  level: error\n"), 0o600))

	var out bytes.Buffer
	stdout = &out
	t.Cleanup(func() { stdout = os.Stdout })
	return &CLI{Config: path}, dir, &out
}

func TestBlacklistCommands(t *testing.T) {
	root, _, out := workspaceCLI(t)
	g := &Global{}

	require.NoError(t, (&BlacklistAddCmd{Name: "evil"}).Run(g, root))
	require.NoError(t, (&BlacklistAddCmd{Name: "bad"}).Run(g, root))
	require.NoError(t, (&BlacklistRemoveCmd{Name: "evil"}).Run(g, root))
	require.NoError(t, (&BlacklistListCmd{}).Run(g, root))
	assert.Equal(t, "bad\n", out.String())
}

func TestLimitsCommands(t *testing.T) {
	root, _, out := workspaceCLI(t)
	g := &Global{}

	targets := 2
	require.NoError(t, (&LimitsSetCmd{Name: "huge", Targets: &targets}).Run(g, root))
	assert.Contains(t, out.String(), "targets: 2")
	assert.Contains(t, out.String(), "timeout: 15m0s")

	out.Reset()
	require.NoError(t, (&LimitsShowCmd{Name: "plain"}).Run(g, root))
	assert.Contains(t, out.String(), "targets: 10")
}

func TestConfigGetCommand(t *testing.T) {
	root, dir, out := workspaceCLI(t)
	g := &Global{}

	require.Error(t, (&ConfigGetCmd{Key: "rustc_version"}).Run(g, root))

	d, err := db.Open(filepath.Join(dir, "pkgdocs.db"))
	require.NoError(t, err)
	require.NoError(t, d.UpsertConfig(t.Context(), "rustc_version", "rustc 1.80.0"))
	require.NoError(t, d.Close())

	require.NoError(t, (&ConfigGetCmd{Key: "rustc_version"}).Run(g, root))
	assert.Equal(t, "rustc 1.80.0\n", out.String())
}

func TestReleaseShowCommand(t *testing.T) {
	root, dir, out := workspaceCLI(t)
	g := &Global{}

	require.Error(t, (&ReleaseShowCmd{Name: "foo", Version: "1.0.0"}).Run(g, root))

	ctx := t.Context()
	d, err := db.Open(filepath.Join(dir, "pkgdocs.db"))
	require.NoError(t, err)
	id, err := d.InsertPackage(ctx, &model.PackageRecord{
		Name: "foo", Version: "1.0.0", HasDocs: true, Successful: true,
		DocTargets: []string{"x86_64-unknown-linux-gnu"},
	})
	require.NoError(t, err)
	_, err = d.InsertBuild(ctx, id, model.BuildOutcome{Successful: true, BuildLog: "all good", ToolchainVersion: "rustc 1"})
	require.NoError(t, err)
	require.NoError(t, d.UpdatePackageData(ctx, "foo", model.PackageData{Owners: []model.Owner{{Login: "alice"}}}))
	require.NoError(t, d.Close())

	require.NoError(t, (&ReleaseShowCmd{Name: "foo", Version: "1.0.0"}).Run(g, root))
	assert.Contains(t, out.String(), "- alice")
	assert.Contains(t, out.String(), "toolchain: rustc 1")
	assert.NotContains(t, out.String(), "all good")

	out.Reset()
	require.NoError(t, (&ReleaseShowCmd{Name: "foo", Version: "1.0.0", Logs: true}).Run(g, root))
	assert.Contains(t, out.String(), "log: all good")
}

func TestStorageGetCommand(t *testing.T) {
	root, dir, out := workspaceCLI(t)
	g := &Global{}

	tree := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "src"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(tree, "src", "lib.rs"), []byte("fn main() {}"), 0o600))
	backend, err := storage.NewFSStore(filepath.Join(dir, "storage"))
	require.NoError(t, err)
	_, _, err = storage.New(backend).UploadTree(t.Context(), "sources/foo/1.0.0", tree)
	require.NoError(t, err)

	require.NoError(t, (&StorageGetCmd{Key: "sources/foo/1.0.0/src/lib.rs"}).Run(g, root))
	assert.Equal(t, "fn main() {}", out.String())

	dest := filepath.Join(t.TempDir(), "lib.rs")
	require.NoError(t, (&StorageGetCmd{Key: "sources/foo/1.0.0/src/lib.rs", Output: dest}).Run(g, root))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "fn main() {}", string(data))

	require.Error(t, (&StorageGetCmd{Key: "sources/foo/1.0.0/missing.rs"}).Run(g, root))
}
