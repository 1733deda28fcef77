package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"git.home.luguber.info/inful/pkgdocs/internal/config"
	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
	"git.home.luguber.info/inful/pkgdocs/internal/model"
	"git.home.luguber.info/inful/pkgdocs/internal/retry"
	"git.home.luguber.info/inful/pkgdocs/internal/util/sets"
)

// Storage uploads directory trees to a Backend.
type Storage struct {
	backend Backend
	policy  retry.Policy
	logger  *slog.Logger
}

// Option configures a Storage.
type Option func(*Storage)

// WithRetryPolicy sets the policy applied to every backend write.
func WithRetryPolicy(p retry.Policy) Option { return func(s *Storage) { s.policy = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Storage) { s.logger = l } }

// New wraps a backend.
func New(backend Backend, opts ...Option) *Storage {
	s := &Storage{backend: backend, policy: retry.DefaultPolicy(), logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open creates the backend selected by cfg.
func Open(ctx context.Context, cfg config.StorageConfig, opts ...Option) (*Storage, error) {
	switch cfg.Backend {
	case config.StorageBackendS3:
		b, err := NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, derrors.StorageError("open s3 store", err)
		}
		return New(b, opts...), nil
	case config.StorageBackendFS, "":
		b, err := NewFSStore(cfg.FS.Path)
		if err != nil {
			return nil, derrors.StorageError("open fs store", err)
		}
		return New(b, opts...), nil
	default:
		return nil, derrors.ConfigInvalid("storage.backend", fmt.Sprintf("unknown backend %q", cfg.Backend))
	}
}

// Backend returns the underlying backend.
func (s *Storage) Backend() Backend { return s.backend }

// Close closes the backend.
func (s *Storage) Close() error { return s.backend.Close() }

// UploadTree stores every regular file under dir as prefix/<relative path>.
// It returns the uploaded files and the compression algorithms used.
func (s *Storage) UploadTree(ctx context.Context, prefix, dir string) ([]model.FileEntry, []string, error) {
	var files []model.FileEntry
	algs := sets.New[string]()

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		// #nosec G304 -- walking a directory the builder produced
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		obj := &Object{
			Key:         path.Join(prefix, rel),
			MimeType:    DetectMime(rel, data),
			Compression: CompressionZstd,
			Size:        int64(len(data)),
			Data:        Compress(data),
		}
		if err := s.put(ctx, obj); err != nil {
			return err
		}
		algs.Add(obj.Compression)
		files = append(files, model.FileEntry{Path: rel, Mime: obj.MimeType, Size: obj.Size})
		return nil
	})
	if err != nil {
		return nil, nil, derrors.StorageError("upload "+prefix, err)
	}
	s.logger.Debug("Uploaded tree", logfields.Prefix(prefix), logfields.Path(dir), logfields.Count(len(files)))
	return files, sets.Sorted(algs), nil
}

// Fetch returns the decompressed content stored under key.
func (s *Storage) Fetch(ctx context.Context, key string) ([]byte, *Object, error) {
	obj, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	data, err := Decompress(obj.Compression, obj.Data)
	if err != nil {
		return nil, nil, derrors.StorageError("fetch "+key, err)
	}
	return data, obj, nil
}

func (s *Storage) put(ctx context.Context, obj *Object) error {
	return s.policy.Do(ctx, func(ctx context.Context) error {
		if err := s.backend.Put(ctx, obj); err != nil {
			return derrors.WrapRetryable(err, derrors.CategoryStorage, derrors.SeverityError, "put "+obj.Key)
		}
		return nil
	})
}

var sourceTypes = map[string]string{
	".rs":   "text/rust",
	".toml": "text/toml",
	".md":   "text/markdown",
}

// DetectMime guesses the content type of a file. Extensions win over content
// sniffing because stylesheets and scripts sniff as plain text.
func DetectMime(name string, data []byte) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := sourceTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return mimetype.Detect(data).String()
}
