package docbuilder

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/limits"
	"git.home.luguber.info/inful/pkgdocs/internal/metadata"
	"git.home.luguber.info/inful/pkgdocs/internal/model"
)

func TestLogStorageKeepsOldestContent(t *testing.T) {
	s := newLogStorage(20)
	s.AddLine("first line")
	s.AddLine("second line")
	s.AddLine("third line")

	assert.Equal(t, "first line\n"+truncatedMarker+"\n", s.String())
}

func TestLogStorageUnbounded(t *testing.T) {
	s := newLogStorage(0)
	s.AddLine("a")
	s.AddLine("b")
	assert.Equal(t, "a\nb\n", s.String())
}

func TestBuildCommand(t *testing.T) {
	h := newHarness(t)
	h.b.opts.CPULimit = 4
	h.b.state.Token = testToken
	md := &metadata.Metadata{Features: []string{"serde"}, RustdocArgs: []string{"--html-in-header", "x.html"}}
	lim := limits.Default()
	lim.Timeout = 7 * time.Minute

	cmd, err := h.b.buildCommand(t.Context(), "x86_64-pc-windows-msvc", md, lim, []string{"--resource-suffix", "-" + testToken})
	require.NoError(t, err)

	assert.Equal(t, "cargo", cmd.Program)
	assert.Equal(t, []string{
		"doc", "--lib", "--no-deps", "--features", "serde",
		"-j4", "--target", "x86_64-pc-windows-msvc",
	}, cmd.Args)
	assert.Equal(t,
		"--html-in-header x.html --cfg docsrs -Z unstable-options --static-root-path / --cap-lints warn --resource-suffix -"+testToken,
		cmd.Env["RUSTDOCFLAGS"])
	assert.Equal(t, "1", cmd.Env["DOCS_RS"])
	assert.Equal(t, 7*time.Minute, cmd.Timeout)
	assert.Zero(t, cmd.NoOutputTimeout)
	assert.NotContains(t, h.tc.callLog(), "add:x86_64-pc-windows-msvc", "default targets are never installed on demand")
}

func TestBuildCommandHostAndExoticTargets(t *testing.T) {
	h := newHarness(t)
	md := &metadata.Metadata{}

	cmd, err := h.b.buildCommand(t.Context(), metadata.HostTarget, md, limits.Default(), nil)
	require.NoError(t, err)
	assert.NotContains(t, cmd.Args, "--target")
	for _, a := range cmd.Args {
		assert.False(t, strings.HasPrefix(a, "-j"), a)
	}

	_, err = h.b.buildCommand(t.Context(), "wasm32-unknown-unknown", md, limits.Default(), nil)
	require.NoError(t, err)
	assert.Contains(t, h.tc.callLog(), "add:wasm32-unknown-unknown")
}

type buildFixture struct {
	h     *harness
	build *fakeBuild
}

func newBuildFixture(t *testing.T) buildFixture {
	t.Helper()
	h := newHarness(t)
	h.b.state = ToolchainState{Version: testVersion, Token: testToken}
	dir := t.TempDir()
	b := &fakeBuild{
		source: filepath.Join(dir, "source"),
		target: filepath.Join(dir, "target"),
		limits: limits.Default(),
		cargo:  h.cargo,
	}
	require.NoError(t, os.MkdirAll(b.source, 0o750))
	require.NoError(t, os.MkdirAll(b.target, 0o750))
	return buildFixture{h: h, build: b}
}

func TestExecuteBuildSuccessWithCoverage(t *testing.T) {
	f := newBuildFixture(t)
	f.h.cargo.coverage = []string{
		`{"src/a.rs":{"total":3,"with_docs":2}}`,
		`warning: not json`,
		`{"src/b.rs":{"total":1,"with_docs":0}}`,
	}

	res, err := f.h.b.executeBuild(t.Context(), f.build, metadata.HostTarget, true, limits.Default(), &metadata.Metadata{})
	require.NoError(t, err)

	assert.True(t, res.Outcome.Successful)
	assert.True(t, res.DocsProduced)
	assert.Equal(t, &model.DocCoverage{TotalItems: 4, DocumentedItems: 2}, res.Outcome.DocCoverage)
	assert.Equal(t, testVersion, res.Outcome.ToolchainVersion)
	assert.Equal(t, "pkgdocs test", res.Outcome.BuilderVersion)
	assert.Contains(t, res.Outcome.BuildLog, "Documenting for "+metadata.HostTarget)

	flags := f.h.cargo.commands[0].Env["RUSTDOCFLAGS"]
	assert.Contains(t, flags, "--extern-html-root-url bar_dep=https://docs.rs/bar-dep/2.0.1")
	assert.Contains(t, flags, "--resource-suffix -"+testToken)
}

func TestExecuteBuildFailureSkipsCoverage(t *testing.T) {
	f := newBuildFixture(t)
	f.h.cargo.failTargets.Add(metadata.HostTarget)
	f.h.cargo.coverage = []string{`{"src/a.rs":{"total":3,"with_docs":2}}`}

	res, err := f.h.b.executeBuild(t.Context(), f.build, metadata.HostTarget, true, limits.Default(), &metadata.Metadata{})
	require.NoError(t, err, "an unsuccessful build is an outcome, not an error")

	assert.False(t, res.Outcome.Successful)
	assert.False(t, res.DocsProduced)
	assert.Nil(t, res.Outcome.DocCoverage)
	assert.Zero(t, f.h.cargo.coverageRuns())
	assert.Contains(t, res.Outcome.BuildLog, "could not document")
}

func TestExecuteBuildZeroCoverageIsNoData(t *testing.T) {
	f := newBuildFixture(t)
	f.h.cargo.coverage = []string{`{"src/a.rs":{"total":0,"with_docs":0}}`}

	res, err := f.h.b.executeBuild(t.Context(), f.build, metadata.HostTarget, true, limits.Default(), &metadata.Metadata{})
	require.NoError(t, err)
	assert.True(t, res.Outcome.Successful)
	assert.Nil(t, res.Outcome.DocCoverage)
}

func TestExecuteBuildRelocatesCrossCompiledDefault(t *testing.T) {
	f := newBuildFixture(t)
	target := "x86_64-pc-windows-msvc"

	res, err := f.h.b.executeBuild(t.Context(), f.build, target, true, limits.Default(), &metadata.Metadata{})
	require.NoError(t, err)

	assert.True(t, res.DocsProduced)
	assert.DirExists(t, filepath.Join(f.build.target, "doc", "foo"))
	assert.NoDirExists(t, filepath.Join(f.build.target, target, "doc"))
}

func TestExecuteBuildKeepsNonDefaultTargetNested(t *testing.T) {
	f := newBuildFixture(t)
	target := "i686-pc-windows-msvc"

	res, err := f.h.b.executeBuild(t.Context(), f.build, target, false, limits.Default(), &metadata.Metadata{})
	require.NoError(t, err)

	assert.True(t, res.DocsProduced)
	assert.DirExists(t, filepath.Join(f.build.target, target, "doc"))
	assert.NoDirExists(t, filepath.Join(f.build.target, "doc"))
}

func TestExecuteBuildRequiresDocumentationDirectory(t *testing.T) {
	f := newBuildFixture(t)
	f.h.cargo.noDocTargets.Add("i686-unknown-linux-gnu")

	res, err := f.h.b.executeBuild(t.Context(), f.build, "i686-unknown-linux-gnu", false, limits.Default(), &metadata.Metadata{})
	require.NoError(t, err)
	assert.True(t, res.Outcome.Successful)
	assert.False(t, res.DocsProduced, "exit code alone does not prove documentation exists")
}

func TestExecuteBuildBinaryHasNoDocs(t *testing.T) {
	f := newBuildFixture(t)
	f.h.tc.cargoJSON = cargoJSON("tool", "1.0.0", "")
	f.h.cargo.lib = ""

	res, err := f.h.b.executeBuild(t.Context(), f.build, metadata.HostTarget, true, limits.Default(), &metadata.Metadata{})
	require.NoError(t, err)
	assert.True(t, res.Outcome.Successful)
	assert.False(t, res.DocsProduced)
}

func TestExecuteBuildPropagatesInfrastructureErrors(t *testing.T) {
	f := newBuildFixture(t)
	f.h.cargo.infraErr = errors.New("docker daemon unreachable")

	_, err := f.h.b.executeBuild(t.Context(), f.build, metadata.HostTarget, true, limits.Default(), &metadata.Metadata{})
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategorySandbox))
}

func TestCopyDocsSkipsEssentialFiles(t *testing.T) {
	f := newBuildFixture(t)
	_, err := f.h.b.executeBuild(t.Context(), f.build, metadata.HostTarget, true, limits.Default(), &metadata.Metadata{})
	require.NoError(t, err)

	staging := t.TempDir()
	require.NoError(t, copyDocs(f.build.target, staging, metadata.HostTarget, true))

	assert.FileExists(t, filepath.Join(staging, "foo", "index.html"))
	assert.NoFileExists(t, filepath.Join(staging, "rustdoc-"+testToken+".css"))
	assert.NoFileExists(t, filepath.Join(staging, "FiraSans-Regular.woff"))
}
