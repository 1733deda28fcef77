package docbuilder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"git.home.luguber.info/inful/pkgdocs/internal/util/sets"
)

// VisitedCache remembers which releases were already attempted so reruns of
// the batch driver skip them cheaply. A cache without a path is memory only.
type VisitedCache struct {
	path string

	mu      sync.Mutex
	visited sets.Set[string]
}

// NewVisitedCache creates an empty cache persisted at path.
func NewVisitedCache(path string) *VisitedCache {
	return &VisitedCache{path: path, visited: sets.New[string]()}
}

// LoadVisitedCache reads the cache at path. A missing file yields an empty cache.
func LoadVisitedCache(path string) (*VisitedCache, error) {
	c := NewVisitedCache(path)
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator configured cache path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("read visited cache: %w", err)
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parse visited cache %s: %w", path, err)
	}
	for _, k := range keys {
		c.visited.Add(k)
	}
	return c, nil
}

func cacheKey(name, version string) string { return name + "-" + version }

// Has reports whether the release was attempted.
func (c *VisitedCache) Has(name, version string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visited.Has(cacheKey(name, version))
}

// Add marks the release as attempted.
func (c *VisitedCache) Add(name, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visited.Add(cacheKey(name, version))
}

// Len returns the number of attempted releases.
func (c *VisitedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.visited)
}

// Save writes the cache atomically. It is a no-op without a path.
func (c *VisitedCache) Save() error {
	if c.path == "" {
		return nil
	}
	c.mu.Lock()
	data, err := json.Marshal(sets.Sorted(c.visited))
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode visited cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write visited cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace visited cache: %w", err)
	}
	return nil
}
