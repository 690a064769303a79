package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/genepanel-curator/internal/domain"
)

// linkTables maps a link kind to its association, history and release-join
// tables. ClinicalIndication/Panel and ClinicalIndication/SuperPanel
// associations are structurally identical and share every code path.
type linkTables struct {
	link        string
	history     string
	releaseJoin string
	fkColumn    string
}

func tablesFor(kind domain.LinkKind) (linkTables, error) {
	switch kind {
	case domain.LinkPanel:
		return linkTables{
			link:        "ci_panels",
			history:     "ci_panel_history",
			releaseJoin: "ci_panel_td_releases",
			fkColumn:    "ci_panel_id",
		}, nil
	case domain.LinkSuperPanel:
		return linkTables{
			link:        "ci_superpanels",
			history:     "ci_superpanel_history",
			releaseJoin: "ci_superpanel_td_releases",
			fkColumn:    "ci_superpanel_id",
		}, nil
	default:
		return linkTables{}, fmt.Errorf("unknown link kind %q", kind)
	}
}

const ciLinkColumns = `id, ci_id, panel_id, is_current, pending, review_reason, td_version, config_source, created_at, updated_at`

// CILinkOpts are the initial field values for a created association row.
type CILinkOpts struct {
	Current      bool
	Pending      bool
	ReviewReason string
	TDVersion    string
	ConfigSource string
}

// CILink returns the association row for one (CI, panel) pair.
func (t *Tx) CILink(ctx context.Context, kind domain.LinkKind, ciID, panelID int64) (*domain.CILink, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	row := t.queryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM %s WHERE ci_id = ? AND panel_id = ?`, ciLinkColumns, tables.link),
		ciID, panelID)

	link, err := scanCILink(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s link (%d, %d): %w", kind, ciID, panelID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s link: %w", kind, err)
	}
	return link, nil
}

// CILinkByID returns one association row.
func (t *Tx) CILinkByID(ctx context.Context, kind domain.LinkKind, id int64) (*domain.CILink, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	row := t.queryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, ciLinkColumns, tables.link), id)
	link, err := scanCILink(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s link %d: %w", kind, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s link by id: %w", kind, err)
	}
	return link, nil
}

// GetOrCreateCILink fetches or creates the association row for one
// (CI, panel) pair. Rows are never duplicated for a pair; multiplicity
// across releases is handled by the release join table.
func (t *Tx) GetOrCreateCILink(ctx context.Context, kind domain.LinkKind, ciID, panelID int64, opts CILinkOpts) (*domain.CILink, bool, error) {
	existing, err := t.CILink(ctx, kind, ciID, panelID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	tables, err := tablesFor(kind)
	if err != nil {
		return nil, false, err
	}

	now := t.now()
	id, err := t.insertID(ctx, fmt.Sprintf(`
		INSERT INTO %s (ci_id, panel_id, is_current, pending, review_reason, td_version, config_source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`, tables.link),
		ciID, panelID, opts.Current, opts.Pending, opts.ReviewReason, opts.TDVersion, opts.ConfigSource, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("creating %s link (%d, %d): %w", kind, ciID, panelID, err)
	}

	return &domain.CILink{
		ID:           id,
		Kind:         kind,
		CIID:         ciID,
		PanelID:      panelID,
		Current:      opts.Current,
		Pending:      opts.Pending,
		ReviewReason: opts.ReviewReason,
		TDVersion:    opts.TDVersion,
		ConfigSource: opts.ConfigSource,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, true, nil
}

// UpdateCILinkState rewrites the current/pending flags and review reason of
// one association. History writes are the caller's responsibility; the
// lifecycle manager owns which transitions record history.
func (t *Tx) UpdateCILinkState(ctx context.Context, kind domain.LinkKind, id int64, current, pending bool, reviewReason string) error {
	tables, err := tablesFor(kind)
	if err != nil {
		return err
	}

	if _, err := t.exec(ctx, fmt.Sprintf(`
		UPDATE %s SET is_current = ?, pending = ?, review_reason = ?, updated_at = ? WHERE id = ?`, tables.link),
		current, pending, reviewReason, t.now(), id); err != nil {
		return fmt.Errorf("updating %s link state: %w", kind, err)
	}
	return nil
}

// UpdateCILinkTDFields refreshes the release metadata recorded on one
// association.
func (t *Tx) UpdateCILinkTDFields(ctx context.Context, kind domain.LinkKind, id int64, tdVersion, configSource string) error {
	tables, err := tablesFor(kind)
	if err != nil {
		return err
	}

	if _, err := t.exec(ctx, fmt.Sprintf(`
		UPDATE %s SET td_version = ?, config_source = ?, updated_at = ? WHERE id = ?`, tables.link),
		tdVersion, configSource, t.now(), id); err != nil {
		return fmt.Errorf("updating %s link td fields: %w", kind, err)
	}
	return nil
}

// CurrentLinksByPanelExternalID returns every live association pointing at
// any version of one external panel id, excluding excludePanelID (pass 0 to
// exclude nothing). Used by the new-version supersession pass.
func (t *Tx) CurrentLinksByPanelExternalID(ctx context.Context, kind domain.LinkKind, externalID string, excludePanelID int64) ([]*domain.CILink, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := t.query(ctx, fmt.Sprintf(`
		SELECT l.id, l.ci_id, l.panel_id, l.is_current, l.pending, l.review_reason,
		       l.td_version, l.config_source, l.created_at, l.updated_at
		FROM %s l
		JOIN panels p ON p.id = l.panel_id
		WHERE p.external_id = ? AND l.is_current = ? AND l.panel_id != ?
		ORDER BY l.id`, tables.link),
		externalID, true, excludePanelID)
	if err != nil {
		return nil, fmt.Errorf("getting current %s links by external id: %w", kind, err)
	}
	defer rows.Close()
	return collectCILinks(rows, kind)
}

// CurrentLinksForCI returns every live association of one clinical
// indication.
func (t *Tx) CurrentLinksForCI(ctx context.Context, kind domain.LinkKind, ciID int64) ([]*domain.CILink, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := t.query(ctx, fmt.Sprintf(`
		SELECT %s FROM %s WHERE ci_id = ? AND is_current = ? ORDER BY id`, ciLinkColumns, tables.link),
		ciID, true)
	if err != nil {
		return nil, fmt.Errorf("getting current %s links for CI: %w", kind, err)
	}
	defer rows.Close()
	return collectCILinks(rows, kind)
}

func scanCILink(s rowScanner, kind domain.LinkKind) (*domain.CILink, error) {
	var link domain.CILink
	err := s.Scan(&link.ID, &link.CIID, &link.PanelID, &link.Current, &link.Pending,
		&link.ReviewReason, &link.TDVersion, &link.ConfigSource, &link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		return nil, err
	}
	link.Kind = kind
	return &link, nil
}

func collectCILinks(rows *sql.Rows, kind domain.LinkKind) ([]*domain.CILink, error) {
	var links []*domain.CILink
	for rows.Next() {
		link, err := scanCILink(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("scanning %s link row: %w", kind, err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}
