package metadata

// HostTarget is the triple the sandbox compiles for natively.
const HostTarget = "x86_64-unknown-linux-gnu"

// DefaultTargets are the tier-one targets kept installed by the toolchain
// reconciler and built when a package declares no target list.
var DefaultTargets = []string{
	"x86_64-unknown-linux-gnu",
	"i686-unknown-linux-gnu",
	"x86_64-apple-darwin",
	"x86_64-pc-windows-msvc",
	"i686-pc-windows-msvc",
}

// IsDefaultTarget reports whether target is one of DefaultTargets.
func IsDefaultTarget(target string) bool {
	for _, t := range DefaultTargets {
		if t == target {
			return true
		}
	}
	return false
}

// BuildTargets splits the declared targets into the default one and the rest.
type BuildTargets struct {
	Default string
	Others  []string
}
