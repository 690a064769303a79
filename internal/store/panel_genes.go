package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/genepanel-curator/internal/domain"
)

// PanelGeneAttrs carries the clinical metadata asserted for a gene on a
// panel. Vocabulary values are resolved to their rows on write.
type PanelGeneAttrs struct {
	Confidence    string
	MOI           string
	MOP           string
	Penetrance    string
	Justification string
	Active        bool
	Pending       bool
}

const panelGeneSelect = `
	SELECT pg.id, pg.panel_id, pg.gene_id, c.value, moi.value, mop.value, pen.value,
	       pg.justification, pg.active, pg.pending
	FROM panel_genes pg
	JOIN confidences c ON c.id = pg.confidence_id
	JOIN modes_of_inheritance moi ON moi.id = pg.moi_id
	JOIN modes_of_pathogenicity mop ON mop.id = pg.mop_id
	JOIN penetrances pen ON pen.id = pg.penetrance_id`

// PanelGene returns the link row for one (panel, gene) pair.
func (t *Tx) PanelGene(ctx context.Context, panelID, geneID int64) (*domain.PanelGene, error) {
	row := t.queryRow(ctx, panelGeneSelect+`
		WHERE pg.panel_id = ? AND pg.gene_id = ?`, panelID, geneID)

	pg, err := scanPanelGene(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("panel gene (%d, %d): %w", panelID, geneID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting panel gene: %w", err)
	}
	return pg, nil
}

// GetOrCreatePanelGene fetches or creates the link for one (panel, gene)
// pair. On fetch the stored attributes win; the caller decides what a
// mismatch against the incoming payload means.
func (t *Tx) GetOrCreatePanelGene(ctx context.Context, panelID, geneID int64, attrs PanelGeneAttrs) (*domain.PanelGene, bool, error) {
	existing, err := t.PanelGene(ctx, panelID, geneID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	confID, err := t.GetOrCreateConfidence(ctx, attrs.Confidence)
	if err != nil {
		return nil, false, err
	}
	moiID, err := t.GetOrCreateMOI(ctx, attrs.MOI)
	if err != nil {
		return nil, false, err
	}
	mopID, err := t.GetOrCreateMOP(ctx, attrs.MOP)
	if err != nil {
		return nil, false, err
	}
	penID, err := t.GetOrCreatePenetrance(ctx, attrs.Penetrance)
	if err != nil {
		return nil, false, err
	}

	id, err := t.insertID(ctx, `
		INSERT INTO panel_genes (panel_id, gene_id, confidence_id, moi_id, mop_id, penetrance_id,
		                         justification, active, pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		panelID, geneID, confID, moiID, mopID, penID, attrs.Justification, attrs.Active, attrs.Pending)
	if err != nil {
		return nil, false, fmt.Errorf("creating panel gene (%d, %d): %w", panelID, geneID, err)
	}

	return &domain.PanelGene{
		ID:            id,
		PanelID:       panelID,
		GeneID:        geneID,
		Confidence:    orUnknown(attrs.Confidence),
		MOI:           orUnknown(attrs.MOI),
		MOP:           orUnknown(attrs.MOP),
		Penetrance:    orUnknown(attrs.Penetrance),
		Justification: attrs.Justification,
		Active:        attrs.Active,
		Pending:       attrs.Pending,
	}, true, nil
}

// UpdatePanelGeneState flips the active/pending flags of one link.
func (t *Tx) UpdatePanelGeneState(ctx context.Context, id int64, active, pending bool) error {
	if _, err := t.exec(ctx, `
		UPDATE panel_genes SET active = ?, pending = ? WHERE id = ?`,
		active, pending, id); err != nil {
		return fmt.Errorf("updating panel gene state: %w", err)
	}
	return nil
}

// UpdatePanelGeneJustification refreshes one link's justification text.
func (t *Tx) UpdatePanelGeneJustification(ctx context.Context, id int64, justification string) error {
	if _, err := t.exec(ctx, `
		UPDATE panel_genes SET justification = ? WHERE id = ?`,
		justification, id); err != nil {
		return fmt.Errorf("updating panel gene justification: %w", err)
	}
	return nil
}

// PanelGenesForPanel returns every gene link of one panel.
func (t *Tx) PanelGenesForPanel(ctx context.Context, panelID int64) ([]*domain.PanelGene, error) {
	rows, err := t.query(ctx, panelGeneSelect+`
		WHERE pg.panel_id = ?
		ORDER BY pg.id`, panelID)
	if err != nil {
		return nil, fmt.Errorf("getting panel genes: %w", err)
	}
	defer rows.Close()

	var links []*domain.PanelGene
	for rows.Next() {
		pg, err := scanPanelGene(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning panel gene row: %w", err)
		}
		links = append(links, pg)
	}
	return links, rows.Err()
}

func scanPanelGene(s rowScanner) (*domain.PanelGene, error) {
	var pg domain.PanelGene
	err := s.Scan(&pg.ID, &pg.PanelID, &pg.GeneID, &pg.Confidence, &pg.MOI, &pg.MOP, &pg.Penetrance,
		&pg.Justification, &pg.Active, &pg.Pending)
	if err != nil {
		return nil, err
	}
	return &pg, nil
}

func orUnknown(value string) string {
	if value == "" {
		return VocabUnknown
	}
	return value
}
