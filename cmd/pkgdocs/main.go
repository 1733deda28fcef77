package main

import (
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pkgdocs/cmd/pkgdocs/commands"
	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/version"
)

func main() {
	cli := &commands.CLI{}
	g := &commands.Global{}
	parser := kong.Parse(cli,
		kong.Bind(g),
		kong.Name("pkgdocs"),
		kong.Description("Build and publish package documentation."),
		kong.UsageOnError(),
		kong.Vars{"version": version.Tag(), "config_path": commands.DefaultConfigPath},
	)

	err := parser.Run(cli)
	os.Exit(derrors.NewCLIErrorAdapter(cli.Verbose, nil).HandleError(err))
}
