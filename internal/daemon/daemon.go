// Package daemon runs world builds on a schedule.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/pkgdocs/internal/config"
	"git.home.luguber.info/inful/pkgdocs/internal/docbuilder"
	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
)

// WorldBuilder documents every release a source yields.
type WorldBuilder interface {
	BuildWorld(ctx context.Context, src docbuilder.PackageSource) error
}

// Index is a package index that can be refreshed from its remote.
type Index interface {
	docbuilder.PackageSource
	Update(ctx context.Context, url string) error
}

// Daemon triggers a world build every period or on a cron schedule.
type Daemon struct {
	cfg       config.DaemonConfig
	indexURL  string
	builder   WorldBuilder
	index     Index
	scheduler *Scheduler
	logger    *slog.Logger

	runs atomic.Int64
}

// New creates a daemon. The schedule comes from cfg.Cron when set, otherwise
// from cfg.Interval.
func New(cfg config.DaemonConfig, indexURL string, b WorldBuilder, ix Index, logger *slog.Logger) (*Daemon, error) {
	if b == nil || ix == nil {
		return nil, errors.New("daemon requires a builder and an index")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s, err := NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Daemon{
		cfg:       cfg,
		indexURL:  indexURL,
		builder:   b,
		index:     ix,
		scheduler: s,
		logger:    logger,
	}, nil
}

// Run schedules the world build and blocks until ctx is done. The first
// build starts immediately.
func (d *Daemon) Run(ctx context.Context) error {
	task := func() { d.tick(ctx) }
	now := gocron.WithStartAt(gocron.WithStartImmediately())

	var err error
	if d.cfg.Cron != "" {
		_, err = d.scheduler.ScheduleCron("world-build", d.cfg.Cron, task, now)
	} else {
		_, err = d.scheduler.ScheduleEvery("world-build", d.cfg.Interval, task, now)
	}
	if err != nil {
		_ = d.scheduler.Stop(context.Background())
		return fmt.Errorf("schedule world build: %w", err)
	}

	d.logger.Info("Daemon started",
		slog.String("cron", d.cfg.Cron),
		slog.Duration("interval", d.cfg.Interval))
	d.scheduler.Start(ctx)

	<-ctx.Done()
	d.logger.Info("Daemon stopping")
	return d.scheduler.Stop(context.Background())
}

// Runs reports how many world builds have completed.
func (d *Daemon) Runs() int64 {
	return d.runs.Load()
}

func (d *Daemon) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if d.indexURL != "" {
		if err := d.index.Update(ctx, d.indexURL); err != nil {
			d.logger.Error("Index update failed", logfields.URL(d.indexURL), logfields.Error(err))
			return
		}
	}
	if err := d.builder.BuildWorld(ctx, d.index); err != nil {
		d.logger.Error("World build failed", logfields.Error(err))
	}
	d.runs.Add(1)
	d.logger.Info("World build finished", slog.Duration("duration", time.Since(start)))
}
