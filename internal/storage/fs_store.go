package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const metaSuffix = ".meta.json"

// FSStore is a filesystem-based Backend. Objects mirror their keys:
//
//	<base>/
//	  objects/
//	    rustdoc/foo/1.0.0/foo/index.html
//	    rustdoc/foo/1.0.0/foo/index.html.meta.json
type FSStore struct {
	basePath string
	mu       sync.RWMutex
}

type fsMeta struct {
	Metadata
	MimeType    string `json:"mime_type"`
	Compression string `json:"compression,omitempty"`
	Size        int64  `json:"size"`
}

// NewFSStore creates a new filesystem-based object store.
func NewFSStore(basePath string) (*FSStore, error) {
	if err := os.MkdirAll(filepath.Join(basePath, "objects"), 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", basePath, err)
	}
	return &FSStore{basePath: basePath}, nil
}

// Put stores an object.
func (s *FSStore) Put(_ context.Context, obj *Object) error {
	p, err := s.objectPath(obj.Key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	if err := os.WriteFile(p, obj.Data, 0o600); err != nil {
		return fmt.Errorf("write object: %w", err)
	}

	meta := fsMeta{
		Metadata:    obj.Metadata,
		MimeType:    obj.MimeType,
		Compression: obj.Compression,
		Size:        obj.Size,
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(p+metaSuffix, data, 0o600); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// Get retrieves an object by key.
func (s *FSStore) Get(_ context.Context, key string) (*Object, error) {
	p, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	// #nosec G304 -- p is validated to stay inside the store
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound{Key: key}
		}
		return nil, fmt.Errorf("read object: %w", err)
	}

	obj := &Object{Key: key, Data: data, Size: int64(len(data))}
	// #nosec G304 -- sidecar of a validated path
	if raw, err := os.ReadFile(p + metaSuffix); err == nil {
		var meta fsMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		obj.Metadata = meta.Metadata
		obj.MimeType = meta.MimeType
		obj.Compression = meta.Compression
		obj.Size = meta.Size
	}
	return obj, nil
}

// Exists checks if an object is stored under key.
func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.objectPath(key)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

// Delete removes an object and its metadata.
func (s *FSStore) Delete(_ context.Context, key string) error {
	p, err := s.objectPath(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound{Key: key}
		}
		return fmt.Errorf("delete object: %w", err)
	}
	_ = os.Remove(p + metaSuffix) // Best effort
	return nil
}

// List returns the keys starting with prefix, in lexical order.
func (s *FSStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root := filepath.Join(s.basePath, "objects")
	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk objects: %w", err)
	}
	return keys, nil
}

// Close releases resources.
func (s *FSStore) Close() error {
	return nil
}

// objectPath returns the filesystem path for key, rejecting keys that escape the store.
func (s *FSStore) objectPath(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || clean != "/"+key {
		return "", fmt.Errorf("invalid object key %s", strconv.Quote(key))
	}
	return filepath.Join(s.basePath, "objects", filepath.FromSlash(clean[1:])), nil
}
