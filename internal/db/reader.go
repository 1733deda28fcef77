package db

import (
	"context"
	"database/sql"
	"errors"

	"git.home.luguber.info/inful/pkgdocs/internal/db/sqlitepool"
	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/model"
)

// Reader answers read-only queries against a build database file through a
// shared connection pool, so lookups never contend with the writer.
type Reader struct {
	pool *sqlitepool.Pool
	path string
}

// NewReader reads the database at path through pool.
func NewReader(pool *sqlitepool.Pool, path string) *Reader {
	return &Reader{pool: pool, path: path}
}

// Release loads a release and its builds, oldest first. It returns nil when not found.
func (r *Reader) Release(ctx context.Context, name, version string) (*Release, error) {
	var rel *Release
	err := r.pool.WithConnection(r.path, func(conn *sql.DB) error {
		var err error
		rel, err = queryRelease(ctx, conn, name, version)
		return err
	})
	if err != nil {
		return nil, wrapRead(err)
	}
	return rel, nil
}

// Owners returns the stored owners of name ordered by login.
func (r *Reader) Owners(ctx context.Context, name string) ([]model.Owner, error) {
	var owners []model.Owner
	err := r.pool.WithConnection(r.path, func(conn *sql.DB) error {
		var err error
		owners, err = queryOwners(ctx, conn, name)
		return err
	})
	if err != nil {
		return nil, wrapRead(err)
	}
	return owners, nil
}

func wrapRead(err error) error {
	var classified *derrors.DocBuilderError
	if errors.As(err, &classified) {
		return err
	}
	return derrors.DatabaseError("read database", err)
}
