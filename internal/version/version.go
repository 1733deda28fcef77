package version

// Version contains the application version information.
// This should be set via build-time ldflags in production:
// go build -ldflags "-X git.home.luguber.info/inful/pkgdocs/internal/version.Version=v1.2.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Tag is the orchestrator version recorded next to every build result.
func Tag() string {
	if GitCommit == "unknown" {
		return "pkgdocs " + Version
	}
	return "pkgdocs " + Version + " (" + GitCommit + ")"
}
