package docbuilder

import (
	"io/fs"
	"path/filepath"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/util/fsutil"
)

// copyDocs stages the documentation of target. The default target lands at
// the root of the staging directory, every other target in a subdirectory
// named after it. Essential files are left out.
func copyDocs(targetDir, staging, target string, isDefault bool) error {
	src := filepath.Join(targetDir, "doc")
	dst := staging
	if !isDefault {
		src = filepath.Join(targetDir, target, "doc")
		dst = filepath.Join(staging, target)
	}
	err := fsutil.CopyDir(src, dst, func(_ string, d fs.DirEntry) bool {
		return !d.IsDir() && isEssentialFile(d.Name())
	})
	if err != nil {
		return derrors.WorkspaceError("copy documentation", err)
	}
	return nil
}
