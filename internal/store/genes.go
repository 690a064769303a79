package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/genepanel-curator/internal/domain"
)

// GeneByHGNC returns the gene row for one HGNC id.
func (t *Tx) GeneByHGNC(ctx context.Context, hgncID string) (*domain.Gene, error) {
	row := t.queryRow(ctx, `
		SELECT id, hgnc_id, symbol, alias_symbols, previous_symbols, created_at
		FROM genes
		WHERE hgnc_id = ?`, hgncID)

	gene, err := scanGene(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("gene %s: %w", hgncID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting gene by HGNC id: %w", err)
	}
	return gene, nil
}

// GetOrCreateGene fetches or creates the gene row for one HGNC id. Display
// fields are written only on creation; the dedicated symbol sync pass is the
// only writer allowed to change them afterwards.
func (t *Tx) GetOrCreateGene(ctx context.Context, hgncID, symbol string, aliases []string) (*domain.Gene, bool, error) {
	gene, err := t.GeneByHGNC(ctx, hgncID)
	if err == nil {
		return gene, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	now := t.now()
	id, err := t.insertID(ctx, `
		INSERT INTO genes (hgnc_id, symbol, alias_symbols, previous_symbols, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		hgncID, symbol, joinSymbols(aliases), "", now)
	if err != nil {
		return nil, false, fmt.Errorf("creating gene %s: %w", hgncID, err)
	}

	return &domain.Gene{
		ID:           id,
		HGNCID:       hgncID,
		Symbol:       symbol,
		AliasSymbols: aliases,
		CreatedAt:    now,
	}, true, nil
}

// UpdateGeneSymbols rewrites a gene's display fields. Reserved for the
// symbol sync pass.
func (t *Tx) UpdateGeneSymbols(ctx context.Context, geneID int64, symbol string, aliases, previous []string) error {
	result, err := t.exec(ctx, `
		UPDATE genes
		SET symbol = ?, alias_symbols = ?, previous_symbols = ?
		WHERE id = ?`,
		symbol, joinSymbols(aliases), joinSymbols(previous), geneID)
	if err != nil {
		return fmt.Errorf("updating gene symbols: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating gene symbols: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("gene %d: %w", geneID, domain.ErrNotFound)
	}
	return nil
}

func scanGene(row *sql.Row) (*domain.Gene, error) {
	var gene domain.Gene
	var aliases, previous string

	err := row.Scan(&gene.ID, &gene.HGNCID, &gene.Symbol, &aliases, &previous, &gene.CreatedAt)
	if err != nil {
		return nil, err
	}
	gene.AliasSymbols = splitSymbols(aliases)
	gene.PreviousSymbols = splitSymbols(previous)
	return &gene, nil
}
