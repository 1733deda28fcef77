// Package readme renders a package README to HTML for the release record.
package readme

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// MaxSize bounds the README bytes rendered; larger files are truncated.
const MaxSize = 512 * 1024

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// Render converts Markdown to HTML. Raw HTML in the source is omitted.
func Render(source []byte) (string, error) {
	if len(source) > MaxSize {
		source = source[:MaxSize]
	}
	var buf bytes.Buffer
	if err := md.Convert(source, &buf); err != nil {
		return "", fmt.Errorf("render readme: %w", err)
	}
	return buf.String(), nil
}

// Load renders the README at rel inside root. A missing file or a path
// outside root yields "".
func Load(root, rel string) (string, error) {
	if rel == "" {
		return "", nil
	}
	p := filepath.Join(root, filepath.FromSlash(rel))
	if r, err := filepath.Rel(root, p); err != nil || strings.HasPrefix(r, "..") {
		return "", nil
	}
	data, err := os.ReadFile(p) // #nosec G304 -- p is confined to root above
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read readme: %w", err)
	}
	return Render(data)
}
