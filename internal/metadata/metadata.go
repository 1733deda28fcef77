// Package metadata reads the build metadata a package declares in its manifest
// and the resolved package graph reported by the package manager.
package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ManifestName is the package manifest file at the root of every source tree.
const ManifestName = "Cargo.toml"

// Metadata is the [package.metadata.docs.rs] table of a manifest.
type Metadata struct {
	Features          []string  `toml:"features"`
	AllFeatures       bool      `toml:"all-features"`
	NoDefaultFeatures bool      `toml:"no-default-features"`
	DefaultTarget     string    `toml:"default-target"`
	DeclaredTargets   *[]string `toml:"targets"`
	RustcArgs         []string  `toml:"rustc-args"`
	RustdocArgs       []string  `toml:"rustdoc-args"`
	ExtraCargoArgs    []string  `toml:"cargo-args"`
}

// Manifest is the subset of the package manifest the builder reads.
type Manifest struct {
	Package struct {
		Name        string   `toml:"name"`
		Version     string   `toml:"version"`
		Description string   `toml:"description"`
		License     string   `toml:"license"`
		Repository  string   `toml:"repository"`
		Keywords    []string `toml:"keywords"`
		Readme      any      `toml:"readme"`
		Metadata    struct {
			Docs struct {
				Rs Metadata `toml:"rs"`
			} `toml:"docs"`
		} `toml:"metadata"`
	} `toml:"package"`
}

// ReadmePath returns the readme file declared by the manifest, or "" when disabled or unset.
func (m *Manifest) ReadmePath() string {
	switch v := m.Package.Readme.(type) {
	case string:
		return v
	case bool:
		if v {
			return "README.md"
		}
	}
	return ""
}

// LoadManifest parses the manifest at the root of a source tree.
func LoadManifest(root string) (*Manifest, error) {
	path := filepath.Join(root, ManifestName)
	data, err := os.ReadFile(path) // #nosec G304 -- path is inside the fetched source tree
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// FromCrateRoot loads the docs metadata declared by the package at root.
func FromCrateRoot(root string) (*Metadata, error) {
	m, err := LoadManifest(root)
	if err != nil {
		return nil, err
	}
	md := m.Package.Metadata.Docs.Rs
	return &md, nil
}

// Targets resolves the default target and the additional targets in declared order.
// Without a declared list the tier-one defaults are used.
func (m *Metadata) Targets() BuildTargets {
	declared := DefaultTargets
	if m.DeclaredTargets != nil {
		declared = *m.DeclaredTargets
	}

	def := m.DefaultTarget
	if def == "" && m.DeclaredTargets != nil && len(*m.DeclaredTargets) > 0 {
		def = (*m.DeclaredTargets)[0]
	}
	if def == "" {
		def = HostTarget
	}

	seen := map[string]bool{def: true}
	others := make([]string, 0, len(declared))
	for _, t := range declared {
		if seen[t] {
			continue
		}
		seen[t] = true
		others = append(others, t)
	}
	return BuildTargets{Default: def, Others: others}
}

// CargoArgs returns the package manager arguments of a documentation build.
func (m *Metadata) CargoArgs() []string {
	args := []string{"doc", "--lib", "--no-deps"}
	if len(m.Features) > 0 {
		args = append(args, "--features", strings.Join(m.Features, " "))
	}
	if m.AllFeatures {
		args = append(args, "--all-features")
	}
	if m.NoDefaultFeatures {
		args = append(args, "--no-default-features")
	}
	return append(args, m.ExtraCargoArgs...)
}

// EnvironmentVariables returns the environment a documentation build runs with.
func (m *Metadata) EnvironmentVariables() map[string]string {
	rustdoc := append(append([]string{}, m.RustdocArgs...), "--cfg", "docsrs")
	return map[string]string{
		"RUSTFLAGS":    strings.Join(m.RustcArgs, " "),
		"RUSTDOCFLAGS": strings.Join(rustdoc, " "),
		"DOCS_RS":      "1",
	}
}
