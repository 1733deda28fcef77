package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyPackage    = "package"
	KeyVersion    = "version"
	KeyTarget     = "target"
	KeyToolchain  = "toolchain"
	KeyStage      = "stage"
	KeyPath       = "path"
	KeyPrefix     = "prefix"
	KeyDurationMS = "duration_ms"
	KeyCount      = "count"
	KeyError      = "error"
	KeyURL        = "url"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Package(name string) slog.Attr   { return slog.String(KeyPackage, name) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func Target(t string) slog.Attr       { return slog.String(KeyTarget, t) }
func Toolchain(v string) slog.Attr    { return slog.String(KeyToolchain, v) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Prefix(p string) slog.Attr       { return slog.String(KeyPrefix, p) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// URL identifies a remote resource such as a crate download or git remote.
func URL(u string) slog.Attr { return slog.String(KeyURL, u) }
