package commands

import (
	"context"

	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
)

// ToolchainCmd groups the toolchain subcommands.
type ToolchainCmd struct {
	Update         ToolchainUpdateCmd         `cmd:"" help:"Reconcile targets and refresh the toolchain"`
	EssentialFiles ToolchainEssentialFilesCmd `cmd:"" name:"essential-files" help:"Rebuild and upload the shared documentation assets"`
}

// ToolchainUpdateCmd implements 'toolchain update'.
type ToolchainUpdateCmd struct{}

func (c *ToolchainUpdateCmd) Run(g *Global, root *CLI) error {
	return withRuntime(g, root, func(ctx context.Context, rt *runtime) error {
		v, err := rt.builder.UpdateToolchain(ctx)
		if err != nil {
			return err
		}
		rt.logger.Info("Toolchain ready", logfields.Toolchain(v))
		return nil
	})
}

// ToolchainEssentialFilesCmd implements 'toolchain essential-files'.
type ToolchainEssentialFilesCmd struct{}

func (c *ToolchainEssentialFilesCmd) Run(g *Global, root *CLI) error {
	return withRuntime(g, root, func(ctx context.Context, rt *runtime) error {
		return rt.builder.AddEssentialFiles(ctx)
	})
}
