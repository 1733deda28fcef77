package docbuilder

import (
	"context"

	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
)

// checkpointEvery is how many successful builds pass between cache saves.
const checkpointEvery = 10

// BuildWorld builds every release src yields, one at a time. Per-package
// errors are logged and never stop the batch; only cancellation does.
// Every release is marked visited whether or not it built.
func (b *Builder) BuildWorld(ctx context.Context, src PackageSource) error {
	count := 0
	err := src.Walk(ctx, func(name, version string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := b.BuildPackage(ctx, name, version)
		b.cache.Add(name, version)
		if err != nil {
			b.logger.Warn("Failed to build package",
				logfields.Package(name), logfields.Version(version), logfields.Error(err))
			return nil
		}
		count++
		if ok && count%checkpointEvery == 0 {
			// the checkpoint includes the release that triggered it
			if err := b.cache.Save(); err != nil {
				b.logger.Warn("Failed to save visited cache", logfields.Error(err))
			}
		}
		return nil
	})
	if serr := b.cache.Save(); serr != nil {
		b.logger.Warn("Failed to save visited cache", logfields.Error(serr))
	}
	b.logger.Info("World build finished", logfields.Count(count))
	return err
}
