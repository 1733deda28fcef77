// Package model holds the result types shared by the build pipeline and its
// storage, database and registry collaborators.
package model

import "time"

// DocCoverage counts documentable and documented items of one package.
type DocCoverage struct {
	TotalItems      int `json:"total_items"`
	DocumentedItems int `json:"documented_items"`
}

// Percent returns the documented share in the range [0, 100].
func (c DocCoverage) Percent() float64 {
	if c.TotalItems == 0 {
		return 0
	}
	return float64(c.DocumentedItems) * 100 / float64(c.TotalItems)
}

// BuildOutcome is the result of one target build attempt. It is never mutated after creation.
type BuildOutcome struct {
	Successful bool
	BuildLog   string
	// DocCoverage is only set when Successful is true.
	DocCoverage      *DocCoverage
	ToolchainVersion string
	BuilderVersion   string
}

// FileEntry describes one uploaded artifact.
type FileEntry struct {
	Path string `json:"path"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
}

// Dependency is a resolved dependency of a package.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Kind    string `json:"kind,omitempty"`
}

// ReleaseData is upstream metadata about one published version.
type ReleaseData struct {
	ReleaseTime time.Time
	Yanked      bool
	Downloads   int64
}

// Owner is a package owner as reported by the registry.
type Owner struct {
	Login  string `json:"login"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// PackageData is the mutable, name-level upstream metadata of a package.
type PackageData struct {
	Description string
	Downloads   int64
	Owners      []Owner
}

// PackageRecord is everything persisted about one release.
type PackageRecord struct {
	Name          string
	Version       string
	Description   string
	License       string
	Repository    string
	Keywords      []string
	ReadmeHTML    string
	Dependencies  []Dependency
	IsLibrary     bool
	DefaultTarget string
	DocTargets    []string
	HasDocs       bool
	HasExamples   bool
	Successful    bool
	Files         []FileEntry
	Compression   []string
	Release       ReleaseData
}

// PackageBuildResult aggregates the outcome of one pipeline run.
type PackageBuildResult struct {
	Default           BuildOutcome
	DefaultTarget     string
	SuccessfulTargets []string
	HasDocs           bool
	HasExamples       bool
	Compression       []string
	Release           ReleaseData
}
