package docbuilder

import (
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/pkgdocs/internal/events"
	"git.home.luguber.info/inful/pkgdocs/internal/metrics"
	"git.home.luguber.info/inful/pkgdocs/internal/version"
)

// DefaultDocsURL is the documentation host dependency links point at.
const DefaultDocsURL = "https://docs.rs"

// DefaultDownloadURL serves package archives.
const DefaultDownloadURL = "https://static.crates.io/crates"

// Options configures a Builder.
type Options struct {
	// CPULimit caps build parallelism with -jN. Zero leaves cargo's default.
	CPULimit int
	// DocsURL is the base of cross-package documentation links.
	DocsURL string
	// DownloadURL is the registry archive base used for registry sources.
	DownloadURL string
	// StagingDir is where per-build staging directories are created.
	// Defaults to the system temp dir.
	StagingDir string
	// BuilderVersion is recorded with every build.
	BuilderVersion string
}

// Deps are the collaborators of a Builder. Sandbox, Toolchain, Database and
// Store are required.
type Deps struct {
	Sandbox   Sandbox
	Toolchain Toolchain
	Database  Database
	Store     ArtifactStore
	API       ReleaseAPI
	Events    events.Publisher
	Recorder  metrics.Recorder
	Cache     *VisitedCache
	Logger    *slog.Logger
}

// ToolchainState is the toolchain version the builder last observed.
type ToolchainState struct {
	// Version is the raw version line, e.g. "rustc 1.48.0-nightly (abc123 2020-09-01)".
	Version string
	// Token is Version condensed for file names, e.g. "20200901-1.48.0-nightly-abc123".
	Token string
}

// Builder builds packages one at a time. Its methods serialize on an
// internal lock because the toolchain is shared mutable state.
type Builder struct {
	opts Options

	sandbox   Sandbox
	toolchain Toolchain
	db        Database
	store     ArtifactStore
	api       ReleaseAPI
	events    events.Publisher
	recorder  metrics.Recorder
	cache     *VisitedCache
	logger    *slog.Logger

	mu    sync.Mutex
	state ToolchainState
}

// New creates a Builder.
func New(deps Deps, opts Options) *Builder {
	if opts.DocsURL == "" {
		opts.DocsURL = DefaultDocsURL
	}
	if opts.DownloadURL == "" {
		opts.DownloadURL = DefaultDownloadURL
	}
	if opts.BuilderVersion == "" {
		opts.BuilderVersion = version.Tag()
	}
	b := &Builder{
		opts:      opts,
		sandbox:   deps.Sandbox,
		toolchain: deps.Toolchain,
		db:        deps.Database,
		store:     deps.Store,
		api:       deps.API,
		events:    deps.Events,
		recorder:  deps.Recorder,
		cache:     deps.Cache,
		logger:    deps.Logger,
	}
	if b.events == nil {
		b.events = events.NoopPublisher{}
	}
	if b.recorder == nil {
		b.recorder = metrics.NoopRecorder{}
	}
	if b.cache == nil {
		b.cache = NewVisitedCache("")
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// ToolchainState returns the last observed toolchain version.
func (b *Builder) ToolchainState() ToolchainState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Cache returns the visited-release cache.
func (b *Builder) Cache() *VisitedCache { return b.cache }
