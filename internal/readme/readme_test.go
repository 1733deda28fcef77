package readme

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	html, err := Render([]byte("# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n<script>alert(1)</script>\n"))
	require.NoError(t, err)
	assert.Contains(t, html, `<h1 id="title">Title</h1>`)
	assert.Contains(t, html, "<table>")
	assert.NotContains(t, html, "<script>")
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("hello *world*"), 0o600))

	html, err := Load(root, "README.md")
	require.NoError(t, err)
	assert.Contains(t, html, "<em>world</em>")

	html, err = Load(root, "MISSING.md")
	require.NoError(t, err)
	assert.Empty(t, html)

	html, err = Load(root, "../outside.md")
	require.NoError(t, err)
	assert.Empty(t, html)
}
