package docbuilder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgdocs/internal/events"
	"git.home.luguber.info/inful/pkgdocs/internal/limits"
	"git.home.luguber.info/inful/pkgdocs/internal/metadata"
	"git.home.luguber.info/inful/pkgdocs/internal/metrics"
	"git.home.luguber.info/inful/pkgdocs/internal/model"
	"git.home.luguber.info/inful/pkgdocs/internal/sandbox"
	"git.home.luguber.info/inful/pkgdocs/internal/storage"
	"git.home.luguber.info/inful/pkgdocs/internal/util/fsutil"
	"git.home.luguber.info/inful/pkgdocs/internal/util/sets"
)

const (
	testVersion      = "rustc 1.48.0-nightly (abc123 2020-09-01)"
	testToken        = "20200901-1.48.0-nightly-abc123"
	newerTestVersion = "rustc 1.49.0-nightly (def456 2020-10-01)"
)

// fakeSandbox serves sources from in-memory file maps and records every
// lifecycle call in order.
type fakeSandbox struct {
	root    string
	sources map[string]map[string]string
	cargo   *fakeCargo

	mu         sync.Mutex
	log        []string
	prepareErr error
	fetchErr   error
	onFetch    func(src string)
}

func (s *fakeSandbox) record(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, entry)
}

func (s *fakeSandbox) entries(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.log {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}

func (s *fakeSandbox) Fetch(_ context.Context, src sandbox.Source) (string, error) {
	s.record("fetch:" + src.String())
	if s.onFetch != nil {
		s.onFetch(src.String())
	}
	if s.fetchErr != nil {
		return "", s.fetchErr
	}
	files, ok := s.sources[src.String()]
	if !ok {
		return "", fmt.Errorf("unknown source %s", src)
	}
	sum := sha256.Sum256([]byte(src.String()))
	dir := filepath.Join(s.root, "cache", hex.EncodeToString(sum[:8]))
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return "", err
		}
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func (s *fakeSandbox) PurgeFromCache(src sandbox.Source) error {
	s.record("purge-cache:" + src.String())
	return nil
}

func (s *fakeSandbox) BuildDir(name string) BuildDir {
	return &fakeBuildDir{sb: s, name: name, path: filepath.Join(s.root, "builds", name)}
}

type fakeBuildDir struct {
	sb   *fakeSandbox
	name string
	path string
}

func (d *fakeBuildDir) Purge() error {
	d.sb.record("purge:" + d.name)
	return os.RemoveAll(d.path)
}

func (d *fakeBuildDir) Build(_ context.Context, sourceDir string, lim limits.Limits, fn func(Build) error) error {
	d.sb.record("build:" + d.name)
	if d.sb.prepareErr != nil {
		return d.sb.prepareErr
	}
	b := &fakeBuild{
		source: filepath.Join(d.path, "source"),
		target: filepath.Join(d.path, "target"),
		limits: lim,
		cargo:  d.sb.cargo,
	}
	if err := fsutil.CopyDir(sourceDir, b.source, nil); err != nil {
		return err
	}
	if err := os.MkdirAll(b.target, 0o750); err != nil {
		return err
	}
	return fn(b)
}

type fakeBuild struct {
	source string
	target string
	limits limits.Limits
	cargo  *fakeCargo
}

func (b *fakeBuild) HostSourceDir() string { return b.source }
func (b *fakeBuild) HostTargetDir() string { return b.target }
func (b *fakeBuild) Run(_ context.Context, c sandbox.Command) error {
	return b.cargo.run(c, b.target)
}

// fakeCargo imitates a documentation build by writing the directories cargo
// would produce.
type fakeCargo struct {
	lib          string
	failTargets  sets.Set[string]
	noDocTargets sets.Set[string]
	coverage     []string
	skipFile     string
	infraErr     error

	mu       sync.Mutex
	commands []sandbox.Command
}

func newFakeCargo(lib string) *fakeCargo {
	return &fakeCargo{lib: lib, failTargets: sets.New[string](), noDocTargets: sets.New[string]()}
}

func commandTarget(c sandbox.Command) string {
	for i, a := range c.Args {
		if a == "--target" && i+1 < len(c.Args) {
			return c.Args[i+1]
		}
	}
	return metadata.HostTarget
}

func isCoverageRun(c sandbox.Command) bool {
	return strings.Contains(c.Env["RUSTDOCFLAGS"], "--show-coverage")
}

func resourceSuffix(c sandbox.Command) string {
	fields := strings.Fields(c.Env["RUSTDOCFLAGS"])
	for i, f := range fields {
		if f == "--resource-suffix" && i+1 < len(fields) {
			return strings.TrimPrefix(fields[i+1], "-")
		}
	}
	return ""
}

// docTargets lists the targets of every non-coverage invocation in order.
func (f *fakeCargo) docTargets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.commands {
		if !isCoverageRun(c) {
			out = append(out, commandTarget(c))
		}
	}
	return out
}

func (f *fakeCargo) coverageRuns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if isCoverageRun(c) {
			n++
		}
	}
	return n
}

func (f *fakeCargo) run(c sandbox.Command, targetDir string) error {
	f.mu.Lock()
	f.commands = append(f.commands, c)
	f.mu.Unlock()
	if f.infraErr != nil {
		return f.infraErr
	}

	target := commandTarget(c)
	if isCoverageRun(c) {
		for _, line := range f.coverage {
			c.ProcessLine(line)
		}
		return nil
	}
	c.ProcessLine("Documenting for " + target)
	if f.failTargets.Has(target) {
		c.ProcessLine("error: could not document")
		return &sandbox.ExitError{Program: "cargo", Code: 101}
	}
	if f.noDocTargets.Has(target) {
		return nil
	}

	doc := filepath.Join(targetDir, "doc")
	if target != metadata.HostTarget {
		doc = filepath.Join(targetDir, target, "doc")
	}
	write := func(rel, body string) error {
		p := filepath.Join(doc, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return err
		}
		return os.WriteFile(p, []byte(body), 0o600)
	}
	if f.lib != "" {
		if err := write(filepath.Join(f.lib, "index.html"), "<html>"+f.lib+"</html>"); err != nil {
			return err
		}
	}
	token := resourceSuffix(c)
	for _, name := range EssentialFilesVersioned {
		if name == f.skipFile {
			continue
		}
		if err := write(versionedName(name, token), name); err != nil {
			return err
		}
	}
	for _, name := range EssentialFilesUnversioned {
		if name == f.skipFile {
			continue
		}
		if err := write(name, name); err != nil {
			return err
		}
	}
	return nil
}

type fakeToolchain struct {
	mu           sync.Mutex
	installed    []string
	listErr      error
	version      string
	upgradeTo    string
	probeLines   []string
	componentErr error
	cargoJSON    string
	calls        []string
}

func (f *fakeToolchain) call(c string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeToolchain) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeToolchain) InstalledTargets(context.Context) ([]string, error) {
	f.call("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.installed...), nil
}

func (f *fakeToolchain) AddTarget(_ context.Context, target string) error {
	f.call("add:" + target)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.installed {
		if t == target {
			return nil
		}
	}
	f.installed = append(f.installed, target)
	return nil
}

func (f *fakeToolchain) RemoveTarget(_ context.Context, target string) error {
	f.call("remove:" + target)
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.installed[:0]
	for _, t := range f.installed {
		if t != target {
			out = append(out, t)
		}
	}
	f.installed = out
	return nil
}

func (f *fakeToolchain) Install(context.Context) error {
	f.call("install")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = nil
	if f.upgradeTo != "" {
		f.version, f.upgradeTo = f.upgradeTo, ""
	}
	return nil
}

func (f *fakeToolchain) AddComponent(_ context.Context, component string) error {
	f.call("component:" + component)
	return f.componentErr
}

func (f *fakeToolchain) ProbeVersion(context.Context) ([]string, error) {
	f.call("probe")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.probeLines != nil {
		return f.probeLines, nil
	}
	if f.version == "" {
		return nil, nil
	}
	return []string{f.version}, nil
}

func (f *fakeToolchain) CargoMetadata(context.Context, string) ([]byte, error) {
	if f.cargoJSON == "" {
		return nil, errors.New("no cargo metadata")
	}
	return []byte(f.cargoJSON), nil
}

type fakeDB struct {
	mu          sync.Mutex
	blacklisted sets.Set[string]
	built       sets.Set[string]
	limits      limits.Limits
	packages    []*model.PackageRecord
	coverage    map[int64]model.DocCoverage
	builds      []model.BuildOutcome
	packageData map[string]model.PackageData
	config      map[string]any
	insertErr   error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		blacklisted: sets.New[string](),
		built:       sets.New[string](),
		limits:      limits.Default(),
		coverage:    map[int64]model.DocCoverage{},
		packageData: map[string]model.PackageData{},
		config:      map[string]any{},
	}
}

func (d *fakeDB) IsBlacklisted(_ context.Context, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blacklisted.Has(name), nil
}

func (d *fakeDB) IsReleaseBuilt(_ context.Context, name, version string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.built.Has(name + "-" + version), nil
}

func (d *fakeDB) LimitsFor(context.Context, string) (limits.Limits, error) {
	return d.limits, nil
}

func (d *fakeDB) InsertPackage(_ context.Context, rec *model.PackageRecord) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.insertErr != nil {
		return 0, d.insertErr
	}
	d.packages = append(d.packages, rec)
	d.built.Add(rec.Name + "-" + rec.Version)
	return int64(len(d.packages)), nil
}

func (d *fakeDB) InsertCoverage(_ context.Context, releaseID int64, cov model.DocCoverage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.coverage[releaseID] = cov
	return nil
}

func (d *fakeDB) InsertBuild(_ context.Context, _ int64, outcome model.BuildOutcome) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.builds = append(d.builds, outcome)
	return int64(len(d.builds)), nil
}

func (d *fakeDB) UpdatePackageData(_ context.Context, name string, data model.PackageData) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.packageData[name] = data
	return nil
}

func (d *fakeDB) UpsertConfig(_ context.Context, key string, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config[key] = value
	return nil
}

// failingStore fails uploads under one prefix.
type failingStore struct {
	ArtifactStore
	prefix string
}

func (f failingStore) UploadTree(ctx context.Context, prefix, dir string) ([]model.FileEntry, []string, error) {
	if strings.HasPrefix(prefix, f.prefix) {
		return nil, nil, errors.New("bucket unavailable")
	}
	return f.ArtifactStore.UploadTree(ctx, prefix, dir)
}

type fakeAPI struct {
	release    model.ReleaseData
	releaseErr error
	pkg        model.PackageData
	pkgErr     error
}

func (a *fakeAPI) GetReleaseData(context.Context, string, string) (model.ReleaseData, error) {
	return a.release, a.releaseErr
}

func (a *fakeAPI) GetPackageData(context.Context, string) (model.PackageData, error) {
	return a.pkg, a.pkgErr
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.BuildFinished
	err    error
}

func (p *fakePublisher) PublishBuildFinished(_ context.Context, ev events.BuildFinished) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) Close() {}

type fakeRecorder struct {
	mu               sync.Mutex
	outcomes         map[metrics.BuildOutcome]int
	toolchainChanges []bool
	targets          []string
}

func (r *fakeRecorder) IncBuildOutcome(o metrics.BuildOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[o]++
}

func (r *fakeRecorder) ObserveBuildDuration(time.Duration) {}

func (r *fakeRecorder) ObserveTargetBuild(target string, _ time.Duration, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, target)
}

func (r *fakeRecorder) IncToolchainUpdate(changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolchainChanges = append(r.toolchainChanges, changed)
}

func (r *fakeRecorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.outcomes {
		n += c
	}
	return n
}

type harness struct {
	b       *Builder
	sb      *fakeSandbox
	tc      *fakeToolchain
	db      *fakeDB
	backend *storage.MockStore
	api     *fakeAPI
	pub     *fakePublisher
	rec     *fakeRecorder
	cargo   *fakeCargo
	staging string
}

const fooManifest = `[package]
name = "foo"
version = "1.0.0"
description = "Foo does things"
license = "MIT"
readme = "README.md"
`

func cargoJSON(name, version, lib string) string {
	targets := fmt.Sprintf(`[{"name":%q,"kind":["bin"],"crate_types":["bin"]}]`, name)
	if lib != "" {
		targets = fmt.Sprintf(`[{"name":%q,"kind":["lib"],"crate_types":["lib"]}]`, lib)
	}
	return fmt.Sprintf(`{
  "packages": [
    {"id": "root", "name": %q, "version": %q, "description": "from cargo", "license": "MIT",
     "targets": %s, "dependencies": [{"name": "bar-dep", "req": "^2", "kind": null}]},
    {"id": "bar", "name": "bar-dep", "version": "2.0.1", "targets": []}
  ],
  "resolve": {"root": "root", "nodes": [{"id": "root", "deps": [{"name": "bar_dep", "pkg": "bar"}]}]}
}`, name, version, targets)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	cargo := newFakeCargo("foo")
	sb := &fakeSandbox{
		root:  root,
		cargo: cargo,
		sources: map[string]map[string]string{
			"registry:" + DummyPackageName + "@" + DummyPackageVersion: {
				"Cargo.toml": "[package]\nname = \"empty-library\"\nversion = \"1.0.0\"\n",
				"src/lib.rs": "",
			},
			"registry:foo@1.0.0": {
				"Cargo.toml":       fooManifest,
				"README.md":        "# Foo\n\nDocs for *foo*.\n",
				"src/lib.rs":       "//! foo",
				"examples/demo.rs": "fn main() {}",
			},
		},
	}
	tc := &fakeToolchain{
		installed: append([]string(nil), metadata.DefaultTargets...),
		version:   testVersion,
		cargoJSON: cargoJSON("foo", "1.0.0", "foo"),
	}
	backend := storage.NewMockStore()
	h := &harness{
		sb:      sb,
		tc:      tc,
		db:      newFakeDB(),
		backend: backend,
		api:     &fakeAPI{release: model.ReleaseData{Downloads: 42}, pkg: model.PackageData{Description: "fresh"}},
		pub:     &fakePublisher{},
		rec:     &fakeRecorder{outcomes: map[metrics.BuildOutcome]int{}},
		cargo:   cargo,
		staging: filepath.Join(root, "staging"),
	}
	h.b = New(Deps{
		Sandbox:   sb,
		Toolchain: tc,
		Database:  h.db,
		Store:     storage.New(backend),
		API:       h.api,
		Events:    h.pub,
		Recorder:  h.rec,
	}, Options{StagingDir: h.staging, BuilderVersion: "pkgdocs test"})
	return h
}

func (h *harness) keys(t *testing.T, prefix string) []string {
	t.Helper()
	keys, err := h.backend.List(context.Background(), prefix)
	require.NoError(t, err)
	return keys
}

func (h *harness) stagingEmpty(t *testing.T) bool {
	t.Helper()
	entries, err := os.ReadDir(h.staging)
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	require.NoError(t, err)
	return len(entries) == 0
}
