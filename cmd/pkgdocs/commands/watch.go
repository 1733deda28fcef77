package commands

import (
	"context"
	"time"

	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
	"git.home.luguber.info/inful/pkgdocs/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Path     string        `arg:"" type:"existingdir" help:"Package directory containing Cargo.toml"`
	Debounce time.Duration `help:"Quiet period after the last change" default:"2s"`
}

func (c *WatchCmd) Run(g *Global, root *CLI) error {
	return withRuntime(g, root, func(ctx context.Context, rt *runtime) error {
		rebuild := func(ctx context.Context) {
			if _, err := rt.builder.BuildLocalPackage(ctx, c.Path); err != nil {
				rt.logger.Error("Rebuild failed", logfields.Path(c.Path), logfields.Error(err))
			}
		}
		rebuild(ctx)

		w := &watch.Watcher{
			Root:     c.Path,
			Debounce: c.Debounce,
			Logger:   rt.logger,
			OnChange: rebuild,
		}
		return w.Run(ctx)
	})
}
