package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgdocs/internal/db/sqlitepool"
	"git.home.luguber.info/inful/pkgdocs/internal/limits"
	"git.home.luguber.info/inful/pkgdocs/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// openFileDB opens a database on disk together with a pooled reader of it.
func openFileDB(t *testing.T) (*DB, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pkgdocs.db")
	d, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	pool := sqlitepool.New(1)
	t.Cleanup(pool.Close)
	return d, NewReader(pool, path)
}

func TestBlacklist(t *testing.T) {
	d := openTestDB(t)
	ctx := t.Context()

	ok, err := d.IsBlacklisted(ctx, "evil")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.AddToBlacklist(ctx, "evil"))
	require.NoError(t, d.AddToBlacklist(ctx, "ugly"))
	ok, err = d.IsBlacklisted(ctx, "evil")
	require.NoError(t, err)
	assert.True(t, ok)

	names, err := d.Blacklist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"evil", "ugly"}, names)

	require.NoError(t, d.RemoveFromBlacklist(ctx, "evil"))
	ok, err = d.IsBlacklisted(ctx, "evil")
	require.NoError(t, err)
	assert.False(t, ok)

	names, err = d.Blacklist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ugly"}, names)
}

func TestLimitsFor(t *testing.T) {
	d := openTestDB(t)
	ctx := t.Context()

	got, err := d.LimitsFor(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, limits.Default(), got)

	mem := uint64(6 << 30)
	timeout := time.Hour
	require.NoError(t, d.SetLimitOverrides(ctx, "huge", limits.Overrides{Memory: &mem, Timeout: &timeout}))
	got, err = d.LimitsFor(ctx, "huge")
	require.NoError(t, err)
	assert.Equal(t, mem, got.Memory)
	assert.Equal(t, time.Hour, got.Timeout)
	assert.Equal(t, limits.DefaultTargets, got.Targets)
}

func TestConfigRoundTrip(t *testing.T) {
	d := openTestDB(t)
	ctx := t.Context()

	var v string
	found, err := d.GetConfig(ctx, "rustc_version", &v)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, d.UpsertConfig(ctx, "rustc_version", "rustc 1.0.0"))
	require.NoError(t, d.UpsertConfig(ctx, "rustc_version", "rustc 1.1.0"))
	found, err = d.GetConfig(ctx, "rustc_version", &v)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "rustc 1.1.0", v)
}

func TestInsertPackageAndBuilds(t *testing.T) {
	d, reader := openFileDB(t)
	ctx := t.Context()

	built, err := d.IsReleaseBuilt(ctx, "foo", "1.0.0")
	require.NoError(t, err)
	assert.False(t, built)

	rec := &model.PackageRecord{
		Name:          "foo",
		Version:       "1.0.0",
		Description:   "a crate",
		Keywords:      []string{"docs"},
		Dependencies:  []model.Dependency{{Name: "bar", Version: "0.2.0"}},
		IsLibrary:     true,
		DefaultTarget: "x86_64-unknown-linux-gnu",
		DocTargets:    []string{"x86_64-unknown-linux-gnu"},
		HasDocs:       true,
		Successful:    true,
		Files:         []model.FileEntry{{Path: "src/lib.rs", Mime: "text/rust", Size: 10}},
		Compression:   []string{"zstd"},
		Release:       model.ReleaseData{ReleaseTime: time.Unix(1600000000, 0).UTC(), Downloads: 5},
	}
	id, err := d.InsertPackage(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, d.InsertCoverage(ctx, id, model.DocCoverage{TotalItems: 4, DocumentedItems: 2}))
	_, err = d.InsertBuild(ctx, id, model.BuildOutcome{Successful: true, BuildLog: "ok", ToolchainVersion: "rustc 1", BuilderVersion: "pkgdocs dev"})
	require.NoError(t, err)

	rec.Successful = false
	again, err := d.InsertPackage(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	_, err = d.InsertBuild(ctx, id, model.BuildOutcome{Successful: false, BuildLog: "boom", ToolchainVersion: "rustc 1", BuilderVersion: "pkgdocs dev"})
	require.NoError(t, err)

	built, err = d.IsReleaseBuilt(ctx, "foo", "1.0.0")
	require.NoError(t, err)
	assert.True(t, built)

	r, err := reader.Release(ctx, "foo", "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.False(t, r.Record.Successful)
	assert.Equal(t, rec.Dependencies, r.Record.Dependencies)
	assert.Equal(t, rec.Files, r.Record.Files)
	assert.Equal(t, rec.Release.ReleaseTime, r.Record.Release.ReleaseTime)
	assert.Equal(t, &model.DocCoverage{TotalItems: 4, DocumentedItems: 2}, r.Coverage)
	require.Len(t, r.Builds, 2)
	assert.True(t, r.Builds[0].Successful)
	assert.Equal(t, "boom", r.Builds[1].BuildLog)

	missing, err := reader.Release(ctx, "foo", "9.9.9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdatePackageData(t *testing.T) {
	d, reader := openFileDB(t)
	ctx := t.Context()

	require.NoError(t, d.UpdatePackageData(ctx, "foo", model.PackageData{
		Description: "x", Downloads: 10,
		Owners: []model.Owner{{Login: "b"}, {Login: "a", Name: "A"}},
	}))
	require.NoError(t, d.UpdatePackageData(ctx, "foo", model.PackageData{
		Owners: []model.Owner{{Login: "a", Name: "A"}},
	}))
	owners, err := reader.Owners(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, []model.Owner{{Login: "a", Name: "A"}}, owners)
}

func TestReaderIsReadOnly(t *testing.T) {
	_, reader := openFileDB(t)

	err := reader.pool.WithConnection(reader.path, func(conn *sql.DB) error {
		_, err := conn.Exec("DELETE FROM packages")
		return err
	})
	assert.Error(t, err)

	missing, err := reader.Release(t.Context(), "nope", "1.0.0")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReaderMissingDatabase(t *testing.T) {
	pool := sqlitepool.New(1)
	t.Cleanup(pool.Close)
	reader := NewReader(pool, filepath.Join(t.TempDir(), "absent.db"))
	_, err := reader.Owners(t.Context(), "foo")
	assert.Error(t, err)
}
