// Package commands implements the pkgdocs command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pkgdocs/internal/config"
	"git.home.luguber.info/inful/pkgdocs/internal/db"
	"git.home.luguber.info/inful/pkgdocs/internal/docbuilder"
	"git.home.luguber.info/inful/pkgdocs/internal/events"
	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
	"git.home.luguber.info/inful/pkgdocs/internal/metrics"
	"git.home.luguber.info/inful/pkgdocs/internal/registry"
	"git.home.luguber.info/inful/pkgdocs/internal/retry"
	"git.home.luguber.info/inful/pkgdocs/internal/sandbox"
	"git.home.luguber.info/inful/pkgdocs/internal/storage"
	"git.home.luguber.info/inful/pkgdocs/internal/version"
)

// DefaultConfigPath is read when --config is not given.
const DefaultConfigPath = "pkgdocs.yaml"

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"${config_path}" env:"PKGDOCS_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build     BuildCmd     `cmd:"" help:"Build documentation for packages"`
	Toolchain ToolchainCmd `cmd:"" help:"Manage the build toolchain"`
	Daemon    DaemonCmd    `cmd:"" help:"Periodically build every package in the index"`
	Watch     WatchCmd     `cmd:"" help:"Rebuild a local package whenever its sources change"`
	Database  DatabaseCmd  `cmd:"" help:"Inspect and edit the build database"`
	Storage   StorageCmd   `cmd:"" help:"Inspect the artifact store"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.Logger)
	return nil
}

// LoadConfig reads the configuration and replaces the default logger with
// the one it describes. A missing default config file means "defaults only".
func (c *CLI) LoadConfig(g *Global) (*config.Config, error) {
	path := c.Config
	if path == DefaultConfigPath {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if c.Verbose {
		cfg.Logging.Level = config.LogLevelDebug
	}
	g.Logger = cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(g.Logger)
	return cfg, nil
}

// runtime is the set of collaborators a command needs to build packages.
type runtime struct {
	builder *docbuilder.Builder
	index   *registry.Index
	cfg     *config.Config
	logger  *slog.Logger
	closers []func() error
}

// Close releases every resource opened by newRuntime in reverse order.
func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	policy := retry.FromConfig(cfg.Retry)
	httpClient := &http.Client{Timeout: 5 * time.Minute}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, database.Close)

	store, err := storage.Open(ctx, cfg.Storage, storage.WithRetryPolicy(policy), storage.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, store.Close)

	ws, err := sandbox.Open(sandbox.Options{
		Root:                cfg.Workspace,
		Docker:              cfg.Sandbox.Docker,
		Image:               cfg.Sandbox.Image,
		RunningInsideDocker: cfg.Sandbox.RunningInsideDocker,
		Channel:             cfg.Toolchain.Channel,
		HTTPClient:          httpClient,
		Logger:              logger,
	})
	if err != nil {
		return nil, err
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Events.NATSURL != "" {
		p, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			return nil, err
		}
		publisher = p
		rt.closers = append(rt.closers, func() error { p.Close(); return nil })
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Metrics.Addr != "" {
		reg := metrics.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		rt.closers = append(rt.closers, serveMetrics(cfg.Metrics.Addr, reg, logger))
	}

	cache, err := docbuilder.LoadVisitedCache(cfg.Cache.Path)
	if err != nil {
		return nil, err
	}

	rt.index = &registry.Index{Path: cfg.Registry.IndexPath}
	rt.builder = docbuilder.New(docbuilder.Deps{
		Sandbox:   docbuilder.WorkspaceSandbox(ws),
		Toolchain: ws.Toolchain(),
		Database:  database,
		Store:     store,
		API:       registry.NewAPI(cfg.Registry.APIURL, httpClient, policy),
		Events:    publisher,
		Recorder:  recorder,
		Cache:     cache,
		Logger:    logger,
	}, docbuilder.Options{
		CPULimit:       cfg.Toolchain.CPULimit,
		DocsURL:        cfg.Registry.DocsURL,
		DownloadURL:    cfg.Registry.DownloadURL,
		BuilderVersion: version.Tag(),
	})
	return rt, nil
}

// serveMetrics exposes reg on addr until the returned closer is called.
func serveMetrics(addr string, reg *prom.Registry, logger *slog.Logger) func() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	logger.Info("Serving metrics", slog.String("addr", addr))
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("stop metrics server: %w", err)
		}
		return nil
	}
}
