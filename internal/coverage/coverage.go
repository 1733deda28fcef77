// Package coverage aggregates the line-delimited JSON emitted by a
// documentation-coverage run into total and documented item counts.
package coverage

import (
	"encoding/json"
	"strings"

	"git.home.luguber.info/inful/pkgdocs/internal/model"
)

// Flags are the extra documentation-generator flags of a coverage run.
var Flags = []string{"--output-format", "json", "--show-coverage"}

// FileCoverage is the per-file entry of one coverage line.
type FileCoverage struct {
	Total    int `json:"total"`
	WithDocs int `json:"with_docs"`
}

// Aggregator accumulates coverage lines. The zero value is ready to use.
// Counts only grow, so partial output before a crash is still counted.
type Aggregator struct {
	total      int
	documented int
}

// AddLine parses one output line. Lines that are not a complete JSON object,
// or that fail to parse, are skipped.
func (a *Aggregator) AddLine(line string) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
		return
	}
	var files map[string]FileCoverage
	if err := json.Unmarshal([]byte(line), &files); err != nil {
		return
	}
	for _, f := range files {
		a.total += f.Total
		a.documented += f.WithDocs
	}
}

// Result returns the aggregate, or nil when both totals are zero.
// A package with nothing to document is indistinguishable from an empty scan here.
func (a *Aggregator) Result() *model.DocCoverage {
	if a.total == 0 && a.documented == 0 {
		return nil
	}
	return &model.DocCoverage{TotalItems: a.total, DocumentedItems: a.documented}
}
