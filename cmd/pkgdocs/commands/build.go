package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
)

// BuildCmd groups the build subcommands.
type BuildCmd struct {
	Package BuildPackageCmd `cmd:"" help:"Build one registry release"`
	Local   BuildLocalCmd   `cmd:"" help:"Build a package from a local directory"`
	World   BuildWorldCmd   `cmd:"" help:"Build every release in the package index"`
	Git     BuildGitCmd     `cmd:"" help:"Build a package from a git repository"`
}

// BuildPackageCmd implements 'build package'.
type BuildPackageCmd struct {
	Name    string `arg:"" help:"Package name"`
	Version string `arg:"" help:"Package version"`
}

func (c *BuildPackageCmd) Run(g *Global, root *CLI) error {
	return withRuntime(g, root, func(ctx context.Context, rt *runtime) error {
		return report(rt, c.Name+"-"+c.Version)(rt.builder.BuildPackage(ctx, c.Name, c.Version))
	})
}

// BuildLocalCmd implements 'build local'.
type BuildLocalCmd struct {
	Path string `arg:"" type:"existingdir" help:"Package directory containing Cargo.toml"`
}

func (c *BuildLocalCmd) Run(g *Global, root *CLI) error {
	return withRuntime(g, root, func(ctx context.Context, rt *runtime) error {
		return report(rt, c.Path)(rt.builder.BuildLocalPackage(ctx, c.Path))
	})
}

// BuildGitCmd implements 'build git'.
type BuildGitCmd struct {
	URL string `arg:"" help:"Repository URL"`
	Rev string `arg:"" help:"Branch, tag or commit to build"`
}

func (c *BuildGitCmd) Run(g *Global, root *CLI) error {
	return withRuntime(g, root, func(ctx context.Context, rt *runtime) error {
		return report(rt, c.URL+"@"+c.Rev)(rt.builder.BuildGitPackage(ctx, c.URL, c.Rev))
	})
}

// BuildWorldCmd implements 'build world'.
type BuildWorldCmd struct {
	Update bool `help:"Refresh the index checkout from registry.index_url first" default:"true" negatable:""`
}

func (c *BuildWorldCmd) Run(g *Global, root *CLI) error {
	return withRuntime(g, root, func(ctx context.Context, rt *runtime) error {
		if c.Update && rt.cfg.Registry.IndexURL != "" {
			if err := rt.index.Update(ctx, rt.cfg.Registry.IndexURL); err != nil {
				return err
			}
		}
		return rt.builder.BuildWorld(ctx, rt.index)
	})
}

// withRuntime loads the configuration, opens every collaborator and runs fn
// with a context cancelled on SIGINT or SIGTERM.
func withRuntime(g *Global, root *CLI, fn func(context.Context, *runtime) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := root.LoadConfig(g)
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg, g.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			g.Logger.Warn("Failed to release resources", logfields.Error(err))
		}
	}()
	return fn(ctx, rt)
}

// report logs whether a single build attempt ran.
func report(rt *runtime, what string) func(bool, error) error {
	return func(built bool, err error) error {
		if err != nil {
			return fmt.Errorf("build %s: %w", what, err)
		}
		if !built {
			rt.logger.Info("Nothing to build", logfields.Package(what))
		}
		return nil
	}
}
