package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/pkgdocs/internal/config"
	"git.home.luguber.info/inful/pkgdocs/internal/db"
	"git.home.luguber.info/inful/pkgdocs/internal/db/sqlitepool"
	"git.home.luguber.info/inful/pkgdocs/internal/limits"
	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
)

// stdout receives command output; tests replace it.
var stdout io.Writer = os.Stdout

// DatabaseCmd groups the operator commands that inspect or edit the build database.
type DatabaseCmd struct {
	Blacklist DatabaseBlacklistCmd `cmd:"" help:"Manage packages whose builds are disabled"`
	Limits    DatabaseLimitsCmd    `cmd:"" help:"Manage per-package sandbox limits"`
	Config    DatabaseConfigCmd    `cmd:"" help:"Inspect process-wide values recorded by the builder"`
	Release   DatabaseReleaseCmd   `cmd:"" help:"Inspect recorded releases"`
}

// DatabaseBlacklistCmd groups 'database blacklist'.
type DatabaseBlacklistCmd struct {
	Add    BlacklistAddCmd    `cmd:"" help:"Disable builds of a package"`
	Remove BlacklistRemoveCmd `cmd:"" help:"Re-enable builds of a package"`
	List   BlacklistListCmd   `cmd:"" help:"List blacklisted packages"`
}

// BlacklistAddCmd implements 'database blacklist add'.
type BlacklistAddCmd struct {
	Name string `arg:"" help:"Package name"`
}

func (c *BlacklistAddCmd) Run(g *Global, root *CLI) error {
	return withDatabase(g, root, func(ctx context.Context, d *db.DB, _ *config.Config) error {
		if err := d.AddToBlacklist(ctx, c.Name); err != nil {
			return err
		}
		g.Logger.Info("Package blacklisted", logfields.Package(c.Name))
		return nil
	})
}

// BlacklistRemoveCmd implements 'database blacklist remove'.
type BlacklistRemoveCmd struct {
	Name string `arg:"" help:"Package name"`
}

func (c *BlacklistRemoveCmd) Run(g *Global, root *CLI) error {
	return withDatabase(g, root, func(ctx context.Context, d *db.DB, _ *config.Config) error {
		if err := d.RemoveFromBlacklist(ctx, c.Name); err != nil {
			return err
		}
		g.Logger.Info("Package removed from blacklist", logfields.Package(c.Name))
		return nil
	})
}

// BlacklistListCmd implements 'database blacklist list'.
type BlacklistListCmd struct{}

func (c *BlacklistListCmd) Run(g *Global, root *CLI) error {
	return withDatabase(g, root, func(ctx context.Context, d *db.DB, _ *config.Config) error {
		names, err := d.Blacklist(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			if _, err := fmt.Fprintln(stdout, name); err != nil {
				return err
			}
		}
		return nil
	})
}

// DatabaseLimitsCmd groups 'database limits'.
type DatabaseLimitsCmd struct {
	Set  LimitsSetCmd  `cmd:"" help:"Override sandbox limits for a package"`
	Show LimitsShowCmd `cmd:"" help:"Show the limits applied to a package"`
}

// LimitsSetCmd implements 'database limits set'. Omitted flags keep the default.
type LimitsSetCmd struct {
	Name    string         `arg:"" help:"Package name"`
	Memory  *uint64        `help:"Memory ceiling in bytes"`
	Timeout *time.Duration `help:"Wall-clock ceiling per sandboxed command"`
	Targets *int           `help:"Additional targets built after the default one"`
}

func (c *LimitsSetCmd) Run(g *Global, root *CLI) error {
	return withDatabase(g, root, func(ctx context.Context, d *db.DB, _ *config.Config) error {
		o := limits.Overrides{Memory: c.Memory, Timeout: c.Timeout, Targets: c.Targets}
		if err := d.SetLimitOverrides(ctx, c.Name, o); err != nil {
			return err
		}
		applied, err := d.LimitsFor(ctx, c.Name)
		if err != nil {
			return err
		}
		return printLimits(applied)
	})
}

// LimitsShowCmd implements 'database limits show'.
type LimitsShowCmd struct {
	Name string `arg:"" help:"Package name"`
}

func (c *LimitsShowCmd) Run(g *Global, root *CLI) error {
	return withDatabase(g, root, func(ctx context.Context, d *db.DB, _ *config.Config) error {
		applied, err := d.LimitsFor(ctx, c.Name)
		if err != nil {
			return err
		}
		return printLimits(applied)
	})
}

func printLimits(l limits.Limits) error {
	return printYAML(map[string]any{
		"memory":  l.Memory,
		"timeout": l.Timeout.String(),
		"targets": l.Targets,
	})
}

// DatabaseConfigCmd groups 'database config'.
type DatabaseConfigCmd struct {
	Get ConfigGetCmd `cmd:"" help:"Print a recorded value, such as rustc_version"`
}

// ConfigGetCmd implements 'database config get'.
type ConfigGetCmd struct {
	Key string `arg:"" help:"Config key"`
}

func (c *ConfigGetCmd) Run(g *Global, root *CLI) error {
	return withDatabase(g, root, func(ctx context.Context, d *db.DB, _ *config.Config) error {
		var value any
		found, err := d.GetConfig(ctx, c.Key, &value)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("config key %q is not set", c.Key)
		}
		return printYAML(value)
	})
}

// DatabaseReleaseCmd groups 'database release'.
type DatabaseReleaseCmd struct {
	Show ReleaseShowCmd `cmd:"" help:"Show a recorded release with its builds and owners"`
}

// ReleaseShowCmd implements 'database release show'.
type ReleaseShowCmd struct {
	Name    string `arg:"" help:"Package name"`
	Version string `arg:"" help:"Package version"`
	Logs    bool   `help:"Include full build logs"`
}

func (c *ReleaseShowCmd) Run(g *Global, root *CLI) error {
	return withDatabase(g, root, func(ctx context.Context, _ *db.DB, cfg *config.Config) error {
		pool := sqlitepool.New(1)
		defer pool.Close()
		reader := db.NewReader(pool, cfg.Database.Path)

		rel, err := reader.Release(ctx, c.Name, c.Version)
		if err != nil {
			return err
		}
		if rel == nil {
			return fmt.Errorf("release %s %s is not recorded", c.Name, c.Version)
		}
		owners, err := reader.Owners(ctx, c.Name)
		if err != nil {
			return err
		}

		builds := make([]map[string]any, 0, len(rel.Builds))
		for _, b := range rel.Builds {
			entry := map[string]any{
				"successful": b.Successful,
				"toolchain":  b.ToolchainVersion,
				"builder":    b.BuilderVersion,
			}
			if c.Logs {
				entry["log"] = b.BuildLog
			}
			builds = append(builds, entry)
		}
		logins := make([]string, 0, len(owners))
		for _, o := range owners {
			logins = append(logins, o.Login)
		}
		out := map[string]any{
			"name":        rel.Record.Name,
			"version":     rel.Record.Version,
			"successful":  rel.Record.Successful,
			"has_docs":    rel.Record.HasDocs,
			"doc_targets": rel.Record.DocTargets,
			"owners":      logins,
			"builds":      builds,
		}
		if rel.Coverage != nil {
			out["coverage"] = map[string]int{
				"total":      rel.Coverage.TotalItems,
				"documented": rel.Coverage.DocumentedItems,
			}
		}
		return printYAML(out)
	})
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return enc.Close()
}

// withDatabase loads the configuration and runs fn against the build database
// only, without opening the sandbox, storage or registry clients.
func withDatabase(g *Global, root *CLI, fn func(context.Context, *db.DB, *config.Config) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := root.LoadConfig(g)
	if err != nil {
		return err
	}
	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			g.Logger.Warn("Failed to close database", logfields.Error(err))
		}
	}()
	return fn(ctx, d, cfg)
}
