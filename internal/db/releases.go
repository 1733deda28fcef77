package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/model"
)

// InsertPackage records a release, creating the package row when needed, and
// returns the release id. Recording the same release again updates it in place.
func (d *DB) InsertPackage(ctx context.Context, rec *model.PackageRecord) (int64, error) {
	keywords, err := marshalJSON(rec.Keywords)
	if err != nil {
		return 0, derrors.DatabaseError("encode keywords", err)
	}
	deps, err := marshalJSON(rec.Dependencies)
	if err != nil {
		return 0, derrors.DatabaseError("encode dependencies", err)
	}
	targets, err := marshalJSON(rec.DocTargets)
	if err != nil {
		return 0, derrors.DatabaseError("encode doc targets", err)
	}
	files, err := marshalJSON(rec.Files)
	if err != nil {
		return 0, derrors.DatabaseError("encode files", err)
	}
	algs, err := marshalJSON(rec.Compression)
	if err != nil {
		return 0, derrors.DatabaseError("encode compression", err)
	}
	var releaseTime sql.NullInt64
	if !rec.Release.ReleaseTime.IsZero() {
		releaseTime = sql.NullInt64{Int64: rec.Release.ReleaseTime.Unix(), Valid: true}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, derrors.DatabaseError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	packageID, err := ensurePackage(ctx, tx, rec.Name)
	if err != nil {
		return 0, err
	}

	var releaseID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO releases (
			package_id, version, description, license, repository, keywords, readme_html,
			dependencies, is_library, default_target, doc_targets, has_docs, has_examples,
			build_status, files, compression, release_time, yanked, downloads, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(package_id, version) DO UPDATE SET
			description = excluded.description,
			license = excluded.license,
			repository = excluded.repository,
			keywords = excluded.keywords,
			readme_html = excluded.readme_html,
			dependencies = excluded.dependencies,
			is_library = excluded.is_library,
			default_target = excluded.default_target,
			doc_targets = excluded.doc_targets,
			has_docs = excluded.has_docs,
			has_examples = excluded.has_examples,
			build_status = excluded.build_status,
			files = excluded.files,
			compression = excluded.compression,
			release_time = excluded.release_time,
			yanked = excluded.yanked,
			downloads = excluded.downloads,
			updated_at = excluded.updated_at
		RETURNING id`,
		packageID, rec.Version, rec.Description, rec.License, rec.Repository, keywords, rec.ReadmeHTML,
		deps, boolInt(rec.IsLibrary), rec.DefaultTarget, targets, boolInt(rec.HasDocs), boolInt(rec.HasExamples),
		boolInt(rec.Successful), files, algs, releaseTime, boolInt(rec.Release.Yanked), rec.Release.Downloads,
		time.Now().Unix(),
	).Scan(&releaseID)
	if err != nil {
		return 0, derrors.DatabaseError("upsert release", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, derrors.DatabaseError("commit release", err)
	}
	return releaseID, nil
}

func ensurePackage(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO packages (name) VALUES (?)", name); err != nil {
		return 0, derrors.DatabaseError("insert package", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM packages WHERE name = ?", name).Scan(&id); err != nil {
		return 0, derrors.DatabaseError("query package", err)
	}
	return id, nil
}

// InsertCoverage stores the documentation coverage of a release.
func (d *DB) InsertCoverage(ctx context.Context, releaseID int64, cov model.DocCoverage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO doc_coverage (release_id, total_items, documented_items) VALUES (?, ?, ?)
		ON CONFLICT(release_id) DO UPDATE SET
			total_items = excluded.total_items,
			documented_items = excluded.documented_items`,
		releaseID, cov.TotalItems, cov.DocumentedItems)
	if err != nil {
		return derrors.DatabaseError("upsert coverage", err)
	}
	return nil
}

// InsertBuild appends a build record to a release and returns its id.
func (d *DB) InsertBuild(ctx context.Context, releaseID int64, outcome model.BuildOutcome) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO builds (release_id, build_status, toolchain_version, builder_version, build_log, build_time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		releaseID, boolInt(outcome.Successful), outcome.ToolchainVersion, outcome.BuilderVersion,
		outcome.BuildLog, time.Now().Unix())
	if err != nil {
		return 0, derrors.DatabaseError("insert build", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, derrors.DatabaseError("insert build id", err)
	}
	return id, nil
}

// UpdatePackageData refreshes the name-level metadata and owner list of a package.
func (d *DB) UpdatePackageData(ctx context.Context, name string, data model.PackageData) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return derrors.DatabaseError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := ensurePackage(ctx, tx, name)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE packages SET description = ?, downloads = ? WHERE id = ?", data.Description, data.Downloads, id); err != nil {
		return derrors.DatabaseError("update package", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM owners WHERE package_id = ?", id); err != nil {
		return derrors.DatabaseError("clear owners", err)
	}
	for _, o := range data.Owners {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO owners (package_id, login, name, avatar) VALUES (?, ?, ?, ?)",
			id, o.Login, o.Name, o.Avatar); err != nil {
			return derrors.DatabaseError("insert owner", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return derrors.DatabaseError("commit package data", err)
	}
	return nil
}

// Release is a stored release with its coverage and build history.
type Release struct {
	ID       int64
	Record   model.PackageRecord
	Coverage *model.DocCoverage
	Builds   []model.BuildOutcome
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// queryRelease loads a release and its builds, oldest first. It returns nil when not found.
func queryRelease(ctx context.Context, q querier, name, version string) (*Release, error) {
	var (
		r                                             Release
		keywords, deps, targets, files, algs          string
		isLib, hasDocs, hasExamples, status, yanked   int
		releaseTime                                   sql.NullInt64
		description, license, repo, readme, defTarget sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT r.id, r.description, r.license, r.repository, r.keywords, r.readme_html, r.dependencies,
			r.is_library, r.default_target, r.doc_targets, r.has_docs, r.has_examples, r.build_status,
			r.files, r.compression, r.release_time, r.yanked, r.downloads
		FROM releases r JOIN packages p ON p.id = r.package_id
		WHERE p.name = ? AND r.version = ?`, name, version,
	).Scan(&r.ID, &description, &license, &repo, &keywords, &readme, &deps,
		&isLib, &defTarget, &targets, &hasDocs, &hasExamples, &status,
		&files, &algs, &releaseTime, &yanked, &r.Record.Release.Downloads)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, derrors.DatabaseError("query release", err)
	}

	rec := &r.Record
	rec.Name, rec.Version = name, version
	rec.Description, rec.License, rec.Repository = description.String, license.String, repo.String
	rec.ReadmeHTML, rec.DefaultTarget = readme.String, defTarget.String
	rec.IsLibrary, rec.HasDocs, rec.HasExamples, rec.Successful = isLib == 1, hasDocs == 1, hasExamples == 1, status == 1
	rec.Release.Yanked = yanked == 1
	if releaseTime.Valid {
		rec.Release.ReleaseTime = time.Unix(releaseTime.Int64, 0).UTC()
	}
	for _, f := range []struct {
		raw string
		out any
	}{{keywords, &rec.Keywords}, {deps, &rec.Dependencies}, {targets, &rec.DocTargets}, {files, &rec.Files}, {algs, &rec.Compression}} {
		if err := json.Unmarshal([]byte(f.raw), f.out); err != nil {
			return nil, derrors.DatabaseError("decode release", err)
		}
	}

	var cov model.DocCoverage
	err = q.QueryRowContext(ctx,
		"SELECT total_items, documented_items FROM doc_coverage WHERE release_id = ?", r.ID,
	).Scan(&cov.TotalItems, &cov.DocumentedItems)
	switch {
	case err == nil:
		r.Coverage = &cov
	case !errors.Is(err, sql.ErrNoRows):
		return nil, derrors.DatabaseError("query coverage", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT build_status, toolchain_version, builder_version, build_log
		FROM builds WHERE release_id = ? ORDER BY id`, r.ID)
	if err != nil {
		return nil, derrors.DatabaseError("query builds", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b model.BuildOutcome
		var ok int
		var log sql.NullString
		if err := rows.Scan(&ok, &b.ToolchainVersion, &b.BuilderVersion, &log); err != nil {
			return nil, derrors.DatabaseError("scan build", err)
		}
		b.Successful = ok == 1
		b.BuildLog = log.String
		r.Builds = append(r.Builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, derrors.DatabaseError("iterate builds", err)
	}
	return &r, nil
}

func queryOwners(ctx context.Context, q querier, name string) ([]model.Owner, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT o.login, COALESCE(o.name, ''), COALESCE(o.avatar, '')
		FROM owners o JOIN packages p ON p.id = o.package_id
		WHERE p.name = ? ORDER BY o.login`, name)
	if err != nil {
		return nil, derrors.DatabaseError("query owners", err)
	}
	defer rows.Close()

	var owners []model.Owner
	for rows.Next() {
		var o model.Owner
		if err := rows.Scan(&o.Login, &o.Name, &o.Avatar); err != nil {
			return nil, derrors.DatabaseError("scan owner", err)
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}
