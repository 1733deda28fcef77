package docbuilder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
)

func TestVersionedName(t *testing.T) {
	assert.Equal(t, "rustdoc-"+testToken+".css", versionedName("rustdoc.css", testToken))
	assert.Equal(t, "rust-logo-"+testToken+".png", versionedName("rust-logo.png", testToken))
	assert.Equal(t, "LICENSE-"+testToken, versionedName("LICENSE", testToken))
}

func TestIsEssentialFile(t *testing.T) {
	assert.True(t, isEssentialFile("rustdoc-"+testToken+".css"))
	assert.True(t, isEssentialFile("source-script-20201007-1.47.0-18bf6b4f0.js"))
	assert.True(t, isEssentialFile("FiraSans-Regular.woff"))
	assert.False(t, isEssentialFile("rustdoc.css"))
	assert.False(t, isEssentialFile("search-index-"+testToken+".js"))
	assert.False(t, isEssentialFile("index.html"))
}

func essentialKeys() []string {
	var keys []string
	for _, f := range EssentialFilesVersioned {
		keys = append(keys, versionedName(f, testToken))
	}
	keys = append(keys, EssentialFilesUnversioned...)
	return keys
}

func TestAddEssentialFilesUploadsToRoot(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.b.AddEssentialFiles(t.Context()))

	assert.ElementsMatch(t, essentialKeys(), h.keys(t, ""))
	assert.Equal(t, testVersion, h.db.config[ConfigToolchainVersion])
	assert.True(t, h.stagingEmpty(t))
}

func TestAddEssentialFilesRebuildsEveryTime(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.b.AddEssentialFiles(t.Context()))
	first := h.keys(t, "")
	require.NoError(t, h.b.AddEssentialFiles(t.Context()))

	assert.Len(t, h.sb.entries("build:essential-files-"), 2)
	assert.Equal(t, first, h.keys(t, ""))
}

func TestAddEssentialFilesMissingFile(t *testing.T) {
	h := newHarness(t)
	h.cargo.skipFile = "settings.js"

	err := h.b.AddEssentialFiles(t.Context())
	require.ErrorIs(t, err, derrors.ErrEssentialFileMissing)
	assert.Contains(t, err.Error(), "settings-"+testToken+".js")
	assert.Zero(t, h.backend.Len(), "nothing is uploaded when a file is missing")
	assert.NotContains(t, h.db.config, ConfigToolchainVersion)
	assertPurgedAfterBuild(t, h, "essential-files-"+testToken, "registry:empty-library@1.0.0")
}

func TestAddEssentialFilesDummyBuildFailure(t *testing.T) {
	h := newHarness(t)
	h.cargo.failTargets.Add("x86_64-unknown-linux-gnu")

	err := h.b.AddEssentialFiles(t.Context())
	require.ErrorIs(t, err, derrors.ErrDummyBuildFailed)
	assert.Equal(t, derrors.KindInfrastructure, derrors.KindOf(err))
	assertPurgedAfterBuild(t, h, "essential-files-"+testToken, "registry:empty-library@1.0.0")
	_, statErr := os.Stat(filepath.Join(h.sb.root, "builds", "essential-files-"+testToken))
	assert.True(t, os.IsNotExist(statErr))
}

// assertPurgedAfterBuild checks that once the build ran, the build dir and
// the fetched source were each purged exactly once.
func assertPurgedAfterBuild(t *testing.T, h *harness, buildDir, source string) {
	t.Helper()
	h.sb.mu.Lock()
	log := append([]string(nil), h.sb.log...)
	h.sb.mu.Unlock()

	built := -1
	for i, e := range log {
		if e == "build:"+buildDir {
			built = i
		}
	}
	require.GreaterOrEqual(t, built, 0, "build never ran: %v", log)

	var purges, cachePurges int
	for _, e := range log[built+1:] {
		switch e {
		case "purge:" + buildDir:
			purges++
		case "purge-cache:" + source:
			cachePurges++
		}
	}
	assert.Equal(t, 1, purges, "build dir purges after build: %v", log)
	assert.Equal(t, 1, cachePurges, "source cache purges after build: %v", log)
}
