package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/genepanel-curator/internal/domain"
)

// GetOrCreateTDRelease fetches or creates the immutable record of one
// ingested test directory file, keyed on (release label, config source) so
// re-ingesting the same release reuses the row.
func (t *Tx) GetOrCreateTDRelease(ctx context.Context, release, sourceFile, configSource, tdDate string) (*domain.TestDirectoryRelease, bool, error) {
	row := t.queryRow(ctx, `
		SELECT id, release_label, source_file, config_source, td_date, created_at
		FROM td_releases
		WHERE release_label = ? AND config_source = ?`, release, configSource)

	var existing domain.TestDirectoryRelease
	err := row.Scan(&existing.ID, &existing.Release, &existing.SourceFile, &existing.ConfigSource,
		&existing.TDDate, &existing.CreatedAt)
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("looking up test directory release %s: %w", release, err)
	}

	now := t.now()
	id, err := t.insertID(ctx, `
		INSERT INTO td_releases (release_label, source_file, config_source, td_date, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		release, sourceFile, configSource, tdDate, now)
	if err != nil {
		return nil, false, fmt.Errorf("creating test directory release %s: %w", release, err)
	}

	return &domain.TestDirectoryRelease{
		ID:           id,
		Release:      release,
		SourceFile:   sourceFile,
		ConfigSource: configSource,
		TDDate:       tdDate,
		CreatedAt:    now,
	}, true, nil
}

// LinkReleaseToCILink records that a release asserted an association.
// Linking the same pair twice is a no-op, which keeps release re-ingestion
// idempotent.
func (t *Tx) LinkReleaseToCILink(ctx context.Context, kind domain.LinkKind, linkID, releaseID int64) (bool, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return false, err
	}

	var exists int64
	err = t.queryRow(ctx, fmt.Sprintf(`
		SELECT 1 FROM %s WHERE %s = ? AND td_release_id = ?`, tables.releaseJoin, tables.fkColumn),
		linkID, releaseID).Scan(&exists)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("looking up release link: %w", err)
	}

	if _, err := t.exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s, td_release_id) VALUES (?, ?)`, tables.releaseJoin, tables.fkColumn),
		linkID, releaseID); err != nil {
		return false, fmt.Errorf("linking %s %d to release %d: %w", kind, linkID, releaseID, err)
	}
	return true, nil
}

// ReleasesForCILink returns the releases that asserted one association,
// oldest first.
func (t *Tx) ReleasesForCILink(ctx context.Context, kind domain.LinkKind, linkID int64) ([]*domain.TestDirectoryRelease, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := t.query(ctx, fmt.Sprintf(`
		SELECT r.id, r.release_label, r.source_file, r.config_source, r.td_date, r.created_at
		FROM td_releases r
		JOIN %s j ON j.td_release_id = r.id
		WHERE j.%s = ?
		ORDER BY r.id`, tables.releaseJoin, tables.fkColumn), linkID)
	if err != nil {
		return nil, fmt.Errorf("getting releases for %s link: %w", kind, err)
	}
	defer rows.Close()

	var releases []*domain.TestDirectoryRelease
	for rows.Next() {
		var r domain.TestDirectoryRelease
		if err := rows.Scan(&r.ID, &r.Release, &r.SourceFile, &r.ConfigSource, &r.TDDate, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning release row: %w", err)
		}
		releases = append(releases, &r)
	}
	return releases, rows.Err()
}
