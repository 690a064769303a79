package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/genepanel-curator/internal/domain"
)

const panelColumns = `id, external_id, name, version, normalized_version, source, panel_type, created_at`

// GetOrCreatePanel fetches or creates a panel row keyed on the identity
// tuple (external_id, name, normalized_version, source). A new row means a
// version of this external id the store has not seen before; the caller owns
// the supersession consequences.
func (t *Tx) GetOrCreatePanel(ctx context.Context, p *domain.Panel) (*domain.Panel, bool, error) {
	row := t.queryRow(ctx, `
		SELECT `+panelColumns+`
		FROM panels
		WHERE external_id = ? AND name = ? AND normalized_version = ? AND source = ?`,
		p.ExternalID, p.Name, p.NormalizedVersion, p.Source)

	existing, err := scanPanel(row)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("looking up panel %s v%s: %w", p.ExternalID, p.Version, err)
	}

	now := t.now()
	id, err := t.insertID(ctx, `
		INSERT INTO panels (external_id, name, version, normalized_version, source, panel_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		p.ExternalID, p.Name, p.Version, p.NormalizedVersion, p.Source, string(p.Type), now)
	if err != nil {
		return nil, false, fmt.Errorf("creating panel %s v%s: %w", p.ExternalID, p.Version, err)
	}

	created := *p
	created.ID = id
	created.CreatedAt = now
	return &created, true, nil
}

// PanelByID returns one panel row.
func (t *Tx) PanelByID(ctx context.Context, id int64) (*domain.Panel, error) {
	row := t.queryRow(ctx, `SELECT `+panelColumns+` FROM panels WHERE id = ?`, id)
	panel, err := scanPanel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("panel %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting panel by id: %w", err)
	}
	return panel, nil
}

// PanelsByExternalID returns every version of a panel, newest normalized
// version first.
func (t *Tx) PanelsByExternalID(ctx context.Context, externalID string) ([]*domain.Panel, error) {
	rows, err := t.query(ctx, `
		SELECT `+panelColumns+`
		FROM panels
		WHERE external_id = ?
		ORDER BY normalized_version DESC, id DESC`, externalID)
	if err != nil {
		return nil, fmt.Errorf("getting panels by external id: %w", err)
	}
	defer rows.Close()
	return collectPanels(rows)
}

// PanelsByName returns panels matching a display name, for CLI selector
// resolution. Ambiguity is the caller's to surface.
func (t *Tx) PanelsByName(ctx context.Context, name string) ([]*domain.Panel, error) {
	rows, err := t.query(ctx, `
		SELECT `+panelColumns+`
		FROM panels
		WHERE name = ?
		ORDER BY normalized_version DESC, id DESC`, name)
	if err != nil {
		return nil, fmt.Errorf("getting panels by name: %w", err)
	}
	defer rows.Close()
	return collectPanels(rows)
}

// LinkSuperPanelChild records the superpanel/child relation; linking twice
// is a no-op.
func (t *Tx) LinkSuperPanelChild(ctx context.Context, superPanelID, childPanelID int64) error {
	var exists int64
	err := t.queryRow(ctx, `
		SELECT 1 FROM superpanel_children
		WHERE superpanel_id = ? AND child_panel_id = ?`,
		superPanelID, childPanelID).Scan(&exists)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("looking up superpanel child link: %w", err)
	}

	if _, err := t.exec(ctx, `
		INSERT INTO superpanel_children (superpanel_id, child_panel_id)
		VALUES (?, ?)`, superPanelID, childPanelID); err != nil {
		return fmt.Errorf("linking superpanel %d child %d: %w", superPanelID, childPanelID, err)
	}
	return nil
}

// SuperPanelChildren returns the child panels linked to one superpanel.
func (t *Tx) SuperPanelChildren(ctx context.Context, superPanelID int64) ([]*domain.Panel, error) {
	rows, err := t.query(ctx, `
		SELECT p.id, p.external_id, p.name, p.version, p.normalized_version, p.source, p.panel_type, p.created_at
		FROM panels p
		JOIN superpanel_children sc ON sc.child_panel_id = p.id
		WHERE sc.superpanel_id = ?
		ORDER BY p.id`, superPanelID)
	if err != nil {
		return nil, fmt.Errorf("getting superpanel children: %w", err)
	}
	defer rows.Close()
	return collectPanels(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPanel(s rowScanner) (*domain.Panel, error) {
	var p domain.Panel
	var panelType string
	err := s.Scan(&p.ID, &p.ExternalID, &p.Name, &p.Version, &p.NormalizedVersion, &p.Source, &panelType, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Type = domain.PanelType(panelType)
	return &p, nil
}

func collectPanels(rows *sql.Rows) ([]*domain.Panel, error) {
	var panels []*domain.Panel
	for rows.Next() {
		p, err := scanPanel(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning panel row: %w", err)
		}
		panels = append(panels, p)
	}
	return panels, rows.Err()
}
