package docbuilder

import (
	"context"
	"fmt"
	"strings"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/limits"
	"git.home.luguber.info/inful/pkgdocs/internal/metadata"
	"git.home.luguber.info/inful/pkgdocs/internal/sandbox"
)

// rustdocFlags are appended to every documentation build.
const rustdocFlags = " -Z unstable-options --static-root-path / --cap-lints warn "

// buildCommand assembles the cargo invocation documenting target. Targets
// outside the default set are installed on demand.
func (b *Builder) buildCommand(ctx context.Context, target string, md *metadata.Metadata, lim limits.Limits, extra []string) (sandbox.Command, error) {
	if !metadata.IsDefaultTarget(target) {
		if err := b.toolchain.AddTarget(ctx, target); err != nil {
			return sandbox.Command{}, derrors.ToolchainError("add target "+target, err)
		}
	}

	args := md.CargoArgs()
	if b.opts.CPULimit > 0 {
		args = append(args, fmt.Sprintf("-j%d", b.opts.CPULimit))
	}
	if target != metadata.HostTarget {
		args = append(args, "--target", target)
	}

	env := md.EnvironmentVariables()
	env["RUSTDOCFLAGS"] += rustdocFlags + strings.Join(extra, " ")

	return sandbox.Command{
		Program: "cargo",
		Args:    args,
		Env:     env,
		Timeout: lim.Timeout,
		// Builds may stay silent for long stretches; only the wall clock counts.
		NoOutputTimeout: 0,
	}, nil
}
