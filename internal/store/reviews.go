package store

import (
	"context"
	"fmt"

	"github.com/genepanel-curator/internal/domain"
)

// ReviewItem is one association or link awaiting human adjudication.
type ReviewItem struct {
	Kind         string
	LinkID       int64
	RCode        string
	CIName       string
	PanelName    string
	PanelVersion string
	Reason       string
	Current      bool
}

// PendingAssociations returns every CI association flagged pending, both
// panel and superpanel kinds.
func (t *Tx) PendingAssociations(ctx context.Context) ([]*ReviewItem, error) {
	var items []*ReviewItem
	for _, kind := range []domain.LinkKind{domain.LinkPanel, domain.LinkSuperPanel} {
		tables, err := tablesFor(kind)
		if err != nil {
			return nil, err
		}

		rows, err := t.query(ctx, fmt.Sprintf(`
			SELECT l.id, ci.r_code, ci.name, p.name, p.version, l.review_reason, l.is_current
			FROM %s l
			JOIN clinical_indications ci ON ci.id = l.ci_id
			JOIN panels p ON p.id = l.panel_id
			WHERE l.pending = ?
			ORDER BY ci.r_code, p.name`, tables.link), true)
		if err != nil {
			return nil, fmt.Errorf("listing pending %s links: %w", kind, err)
		}

		for rows.Next() {
			item := &ReviewItem{Kind: string(kind)}
			if err := rows.Scan(&item.LinkID, &item.RCode, &item.CIName, &item.PanelName,
				&item.PanelVersion, &item.Reason, &item.Current); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning pending %s link: %w", kind, err)
			}
			items = append(items, item)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return items, nil
}

// PendingGeneLink is one panel/gene link flagged pending.
type PendingGeneLink struct {
	PanelGeneID  int64
	PanelName    string
	PanelVersion string
	HGNCID       string
	Symbol       string
	Confidence   string
	Active       bool
}

// PendingPanelGenes returns every panel/gene link flagged pending.
func (t *Tx) PendingPanelGenes(ctx context.Context) ([]*PendingGeneLink, error) {
	rows, err := t.query(ctx, `
		SELECT pg.id, p.name, p.version, g.hgnc_id, g.symbol, c.value, pg.active
		FROM panel_genes pg
		JOIN panels p ON p.id = pg.panel_id
		JOIN genes g ON g.id = pg.gene_id
		JOIN confidences c ON c.id = pg.confidence_id
		WHERE pg.pending = ?
		ORDER BY p.name, g.hgnc_id`, true)
	if err != nil {
		return nil, fmt.Errorf("listing pending panel genes: %w", err)
	}
	defer rows.Close()

	var links []*PendingGeneLink
	for rows.Next() {
		var l PendingGeneLink
		if err := rows.Scan(&l.PanelGeneID, &l.PanelName, &l.PanelVersion, &l.HGNCID,
			&l.Symbol, &l.Confidence, &l.Active); err != nil {
			return nil, fmt.Errorf("scanning pending panel gene: %w", err)
		}
		links = append(links, &l)
	}
	return links, rows.Err()
}

// GenePanelRow is one row of the genepanels projection: a current
// association's panel together with each active gene on it.
type GenePanelRow struct {
	RCode        string
	CIName       string
	PanelName    string
	PanelVersion string
	HGNCID       string
	Symbol       string
}

// GenePanelRows projects the converged state: for every current CI/panel
// association, the active non-pending genes of the panel.
func (t *Tx) GenePanelRows(ctx context.Context) ([]*GenePanelRow, error) {
	rows, err := t.query(ctx, `
		SELECT ci.r_code, ci.name, p.name, p.version, g.hgnc_id, g.symbol
		FROM ci_panels l
		JOIN clinical_indications ci ON ci.id = l.ci_id
		JOIN panels p ON p.id = l.panel_id
		JOIN panel_genes pg ON pg.panel_id = p.id
		JOIN genes g ON g.id = pg.gene_id
		WHERE l.is_current = ? AND pg.active = ? AND pg.pending = ?
		ORDER BY ci.r_code, p.name, g.hgnc_id`, true, true, false)
	if err != nil {
		return nil, fmt.Errorf("projecting gene panels: %w", err)
	}
	defer rows.Close()

	var result []*GenePanelRow
	for rows.Next() {
		var r GenePanelRow
		if err := rows.Scan(&r.RCode, &r.CIName, &r.PanelName, &r.PanelVersion, &r.HGNCID, &r.Symbol); err != nil {
			return nil, fmt.Errorf("scanning gene panel row: %w", err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// SuperPanelGeneRows extends the genepanels projection through superpanel
// membership: for every current CI/superpanel association, the active
// non-pending genes of each child panel.
func (t *Tx) SuperPanelGeneRows(ctx context.Context) ([]*GenePanelRow, error) {
	rows, err := t.query(ctx, `
		SELECT ci.r_code, ci.name, p.name, p.version, g.hgnc_id, g.symbol
		FROM ci_superpanels l
		JOIN clinical_indications ci ON ci.id = l.ci_id
		JOIN superpanel_children sc ON sc.superpanel_id = l.panel_id
		JOIN panels p ON p.id = sc.child_panel_id
		JOIN panel_genes pg ON pg.panel_id = p.id
		JOIN genes g ON g.id = pg.gene_id
		WHERE l.is_current = ? AND pg.active = ? AND pg.pending = ?
		ORDER BY ci.r_code, p.name, g.hgnc_id`, true, true, false)
	if err != nil {
		return nil, fmt.Errorf("projecting superpanel gene rows: %w", err)
	}
	defer rows.Close()

	var result []*GenePanelRow
	for rows.Next() {
		var r GenePanelRow
		if err := rows.Scan(&r.RCode, &r.CIName, &r.PanelName, &r.PanelVersion, &r.HGNCID, &r.Symbol); err != nil {
			return nil, fmt.Errorf("scanning superpanel gene row: %w", err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// PanelGeneRow is one gene of a panel with its resolved vocabulary values.
type PanelGeneRow struct {
	HGNCID     string
	Symbol     string
	Confidence string
	MOI        string
	Active     bool
	Pending    bool
}

// GenesForPanel lists the genes linked to one panel with display fields
// resolved.
func (t *Tx) GenesForPanel(ctx context.Context, panelID int64) ([]*PanelGeneRow, error) {
	rows, err := t.query(ctx, `
		SELECT g.hgnc_id, g.symbol, c.value, moi.value, pg.active, pg.pending
		FROM panel_genes pg
		JOIN genes g ON g.id = pg.gene_id
		JOIN confidences c ON c.id = pg.confidence_id
		JOIN modes_of_inheritance moi ON moi.id = pg.moi_id
		WHERE pg.panel_id = ?
		ORDER BY g.hgnc_id`, panelID)
	if err != nil {
		return nil, fmt.Errorf("listing genes for panel %d: %w", panelID, err)
	}
	defer rows.Close()

	var result []*PanelGeneRow
	for rows.Next() {
		var r PanelGeneRow
		if err := rows.Scan(&r.HGNCID, &r.Symbol, &r.Confidence, &r.MOI, &r.Active, &r.Pending); err != nil {
			return nil, fmt.Errorf("scanning panel gene row: %w", err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}
