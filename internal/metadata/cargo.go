package metadata

import (
	"encoding/json"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/pkgdocs/internal/model"
)

// CargoMetadata is the package graph printed by `cargo metadata --format-version 1`.
type CargoMetadata struct {
	Packages []Package `json:"packages"`
	Resolve  *struct {
		Root  string `json:"root"`
		Nodes []struct {
			ID   string `json:"id"`
			Deps []struct {
				Name string `json:"name"`
				Pkg  string `json:"pkg"`
			} `json:"deps"`
		} `json:"nodes"`
	} `json:"resolve"`
}

// Package is one package of the graph.
type Package struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	License      string   `json:"license"`
	Repository   string   `json:"repository"`
	Keywords     []string `json:"keywords"`
	Targets      []Target `json:"targets"`
	Dependencies []struct {
		Name string `json:"name"`
		Req  string `json:"req"`
		Kind string `json:"kind"`
	} `json:"dependencies"`
}

// Target is one compilation target of a package.
type Target struct {
	Name       string   `json:"name"`
	Kind       []string `json:"kind"`
	CrateTypes []string `json:"crate_types"`
}

// ParseCargoMetadata decodes the JSON printed by the package manager.
func ParseCargoMetadata(data []byte) (*CargoMetadata, error) {
	var md CargoMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("parse cargo metadata: %w", err)
	}
	if len(md.Packages) == 0 {
		return nil, fmt.Errorf("parse cargo metadata: no packages")
	}
	return &md, nil
}

// Root returns the package the metadata was requested for.
func (c *CargoMetadata) Root() *Package {
	if c.Resolve != nil && c.Resolve.Root != "" {
		for i := range c.Packages {
			if c.Packages[i].ID == c.Resolve.Root {
				return &c.Packages[i]
			}
		}
	}
	return &c.Packages[0]
}

// RootDependencies returns the resolved direct dependencies of the root package.
func (c *CargoMetadata) RootDependencies() []model.Dependency {
	if c.Resolve == nil {
		return nil
	}
	byID := make(map[string]*Package, len(c.Packages))
	for i := range c.Packages {
		byID[c.Packages[i].ID] = &c.Packages[i]
	}
	root := c.Root()
	var deps []model.Dependency
	for _, node := range c.Resolve.Nodes {
		if node.ID != root.ID {
			continue
		}
		for _, d := range node.Deps {
			if p, ok := byID[d.Pkg]; ok {
				deps = append(deps, model.Dependency{Name: p.Name, Version: p.Version})
			}
		}
	}
	return deps
}

// LibraryTarget returns the first target producing a non-binary crate type.
func (p *Package) LibraryTarget() *Target {
	for i := range p.Targets {
		for _, ct := range p.Targets[i].CrateTypes {
			if ct != "bin" {
				return &p.Targets[i]
			}
		}
	}
	return nil
}

// IsLibrary reports whether the package has a library target.
func (p *Package) IsLibrary() bool { return p.LibraryTarget() != nil }

// LibraryName returns the documentation directory name of the library target, or "".
func (p *Package) LibraryName() string {
	if t := p.LibraryTarget(); t != nil {
		return strings.ReplaceAll(t.Name, "-", "_")
	}
	return ""
}

// DeclaredDependencies returns direct dependencies with their version requirements.
func (p *Package) DeclaredDependencies() []model.Dependency {
	deps := make([]model.Dependency, 0, len(p.Dependencies))
	for _, d := range p.Dependencies {
		deps = append(deps, model.Dependency{Name: d.Name, Version: d.Req, Kind: d.Kind})
	}
	return deps
}
