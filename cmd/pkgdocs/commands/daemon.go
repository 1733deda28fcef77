package commands

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/pkgdocs/internal/daemon"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Interval time.Duration `help:"Override daemon.interval, e.g. 30m"`
	Cron     string        `help:"Override daemon.cron with a crontab expression"`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	return withRuntime(g, root, func(ctx context.Context, rt *runtime) error {
		cfg := rt.cfg.Daemon
		if d.Interval > 0 {
			cfg.Interval = d.Interval
			cfg.Cron = ""
		}
		if d.Cron != "" {
			cfg.Cron = d.Cron
		}
		dm, err := daemon.New(cfg, rt.cfg.Registry.IndexURL, rt.builder, rt.index, rt.logger)
		if err != nil {
			return fmt.Errorf("failed to create daemon: %w", err)
		}
		return dm.Run(ctx)
	})
}
