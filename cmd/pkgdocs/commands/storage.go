package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
	"git.home.luguber.info/inful/pkgdocs/internal/storage"
)

// StorageCmd groups the artifact store commands.
type StorageCmd struct {
	Get StorageGetCmd `cmd:"" help:"Print or save one stored artifact, decompressed"`
}

// StorageGetCmd implements 'storage get'.
type StorageGetCmd struct {
	Key    string `arg:"" help:"Storage key, e.g. rustdoc/serde/1.0.0/serde/index.html"`
	Output string `short:"o" help:"Write to this file instead of stdout" type:"path"`
}

func (c *StorageGetCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := root.LoadConfig(g)
	if err != nil {
		return err
	}
	store, err := storage.Open(ctx, cfg.Storage, storage.WithLogger(g.Logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			g.Logger.Warn("Failed to close storage", logfields.Error(err))
		}
	}()

	data, obj, err := store.Fetch(ctx, c.Key)
	if err != nil {
		return err
	}
	g.Logger.Debug("Fetched artifact", logfields.Path(c.Key), logfields.Count(len(data)),
		slog.String("mime", obj.MimeType))

	if c.Output == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(c.Output, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", c.Output, err)
	}
	return nil
}
