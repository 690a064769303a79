package store

import (
	"context"
	"fmt"

	"github.com/genepanel-curator/internal/domain"
)

// History tables are append-only: this file exposes append, count and list.
// Nothing in the store updates or deletes a history row.

// AddGeneHistory appends one audit row for a gene.
func (t *Tx) AddGeneHistory(ctx context.Context, geneID int64, note, user string) error {
	return t.appendHistory(ctx, "gene_history", "gene_id", geneID, note, user)
}

// AddPanelGeneHistory appends one audit row for a panel/gene link.
func (t *Tx) AddPanelGeneHistory(ctx context.Context, panelGeneID int64, note, user string) error {
	return t.appendHistory(ctx, "panel_gene_history", "panel_gene_id", panelGeneID, note, user)
}

// AddPanelRegionHistory appends one audit row for a panel/region link.
func (t *Tx) AddPanelRegionHistory(ctx context.Context, panelRegionID int64, note, user string) error {
	return t.appendHistory(ctx, "panel_region_history", "panel_region_id", panelRegionID, note, user)
}

// AddCILinkHistory appends one audit row for an association.
func (t *Tx) AddCILinkHistory(ctx context.Context, kind domain.LinkKind, linkID int64, note, user string) error {
	tables, err := tablesFor(kind)
	if err != nil {
		return err
	}
	return t.appendHistory(ctx, tables.history, tables.fkColumn, linkID, note, user)
}

// CountPanelGeneHistory returns the number of audit rows for one link.
func (t *Tx) CountPanelGeneHistory(ctx context.Context, panelGeneID int64) (int, error) {
	return t.countHistory(ctx, "panel_gene_history", "panel_gene_id", panelGeneID)
}

// CountCILinkHistory returns the number of audit rows for one association.
func (t *Tx) CountCILinkHistory(ctx context.Context, kind domain.LinkKind, linkID int64) (int, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return 0, err
	}
	return t.countHistory(ctx, tables.history, tables.fkColumn, linkID)
}

// ListPanelGeneHistory returns the audit rows for one link, oldest first.
func (t *Tx) ListPanelGeneHistory(ctx context.Context, panelGeneID int64) ([]*domain.HistoryEntry, error) {
	return t.listHistory(ctx, "panel_gene_history", "panel_gene_id", panelGeneID)
}

// ListPanelRegionHistory returns the audit rows for one link, oldest first.
func (t *Tx) ListPanelRegionHistory(ctx context.Context, panelRegionID int64) ([]*domain.HistoryEntry, error) {
	return t.listHistory(ctx, "panel_region_history", "panel_region_id", panelRegionID)
}

// ListCILinkHistory returns the audit rows for one association, oldest
// first.
func (t *Tx) ListCILinkHistory(ctx context.Context, kind domain.LinkKind, linkID int64) ([]*domain.HistoryEntry, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	return t.listHistory(ctx, tables.history, tables.fkColumn, linkID)
}

// ListGeneHistory returns the audit rows for one gene, oldest first.
func (t *Tx) ListGeneHistory(ctx context.Context, geneID int64) ([]*domain.HistoryEntry, error) {
	return t.listHistory(ctx, "gene_history", "gene_id", geneID)
}

func (t *Tx) appendHistory(ctx context.Context, table, fkColumn string, entityID int64, note, user string) error {
	if _, err := t.exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s, note, user_name, created_at) VALUES (?, ?, ?, ?)`, table, fkColumn),
		entityID, note, user, t.now()); err != nil {
		return fmt.Errorf("appending %s row: %w", table, err)
	}
	return nil
}

func (t *Tx) countHistory(ctx context.Context, table, fkColumn string, entityID int64) (int, error) {
	var count int
	err := t.queryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM %s WHERE %s = ?`, table, fkColumn), entityID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting %s rows: %w", table, err)
	}
	return count, nil
}

func (t *Tx) listHistory(ctx context.Context, table, fkColumn string, entityID int64) ([]*domain.HistoryEntry, error) {
	rows, err := t.query(ctx, fmt.Sprintf(`
		SELECT id, %s, note, user_name, created_at FROM %s WHERE %s = ? ORDER BY id`,
		fkColumn, table, fkColumn), entityID)
	if err != nil {
		return nil, fmt.Errorf("listing %s rows: %w", table, err)
	}
	defer rows.Close()

	var entries []*domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.ID, &e.EntityID, &e.Note, &e.User, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
