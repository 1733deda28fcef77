package docbuilder

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
)

var versionLine = regexp.MustCompile(`^\S+ (\S+) \((\w+) (\d{4})-(\d{2})-(\d{2})\)$`)

// VersionToken condenses a toolchain version line into the token embedded in
// essential file names and the resource suffix:
//
//	rustc 1.48.0-nightly (abc123 2020-09-01) -> 20200901-1.48.0-nightly-abc123
func VersionToken(line string) (string, error) {
	m := versionLine.FindStringSubmatch(line)
	if m == nil {
		return "", fmt.Errorf("%w: %q", derrors.ErrInvalidVersionOutput, line)
	}
	v, err := semver.StrictNewVersion(m[1])
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", derrors.ErrInvalidVersionOutput, line, err)
	}
	return fmt.Sprintf("%s%s%s-%s-%s", m[3], m[4], m[5], v.String(), m[2]), nil
}
