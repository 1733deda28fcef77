package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgdocs/internal/model"
)

const sampleCargoMetadata = `{
  "packages": [
    {"id": "dep 1.2.3", "name": "dep-crate", "version": "1.2.3", "targets": [{"name": "dep-crate", "kind": ["lib"], "crate_types": ["lib"]}]},
    {"id": "root 0.1.0", "name": "my-crate", "version": "0.1.0",
     "targets": [
       {"name": "build-script-build", "kind": ["custom-build"], "crate_types": ["bin"]},
       {"name": "my-crate", "kind": ["lib"], "crate_types": ["rlib"]}
     ],
     "dependencies": [{"name": "dep-crate", "req": "^1.2", "kind": null}]}
  ],
  "resolve": {"root": "root 0.1.0", "nodes": [
    {"id": "root 0.1.0", "deps": [{"name": "dep_crate", "pkg": "dep 1.2.3"}]},
    {"id": "dep 1.2.3", "deps": []}
  ]}
}`

func TestParseCargoMetadataRoot(t *testing.T) {
	md, err := ParseCargoMetadata([]byte(sampleCargoMetadata))
	require.NoError(t, err)

	root := md.Root()
	assert.Equal(t, "my-crate", root.Name)
	assert.True(t, root.IsLibrary())
	assert.Equal(t, "my_crate", root.LibraryName())
	assert.Equal(t, []model.Dependency{{Name: "dep-crate", Version: "1.2.3"}}, md.RootDependencies())
	assert.Equal(t, "^1.2", root.DeclaredDependencies()[0].Version)
}

func TestParseCargoMetadataBinaryOnly(t *testing.T) {
	md, err := ParseCargoMetadata([]byte(`{"packages":[{"id":"x","name":"tool","version":"1.0.0",
		"targets":[{"name":"tool","kind":["bin"],"crate_types":["bin"]}]}]}`))
	require.NoError(t, err)
	assert.False(t, md.Root().IsLibrary())
	assert.Equal(t, "", md.Root().LibraryName())
	assert.Nil(t, md.RootDependencies())
}

func TestParseCargoMetadataErrors(t *testing.T) {
	_, err := ParseCargoMetadata([]byte("not json"))
	assert.Error(t, err)
	_, err = ParseCargoMetadata([]byte(`{"packages":[]}`))
	assert.Error(t, err)
}
