package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// VocabUnknown is the placeholder value used for links created without
// registry metadata, e.g. genes on synthesized ad hoc panels.
const VocabUnknown = "unknown"

// Fixed vocabulary table names. Table names are never caller-supplied.
const (
	vocabConfidence = "confidences"
	vocabMOI        = "modes_of_inheritance"
	vocabMOP        = "modes_of_pathogenicity"
	vocabPenetrance = "penetrances"
)

// GetOrCreateConfidence resolves a confidence vocabulary row by value.
func (t *Tx) GetOrCreateConfidence(ctx context.Context, value string) (int64, error) {
	return t.getOrCreateVocab(ctx, vocabConfidence, value)
}

// GetOrCreateMOI resolves a mode-of-inheritance vocabulary row by value.
func (t *Tx) GetOrCreateMOI(ctx context.Context, value string) (int64, error) {
	return t.getOrCreateVocab(ctx, vocabMOI, value)
}

// GetOrCreateMOP resolves a mode-of-pathogenicity vocabulary row by value.
func (t *Tx) GetOrCreateMOP(ctx context.Context, value string) (int64, error) {
	return t.getOrCreateVocab(ctx, vocabMOP, value)
}

// GetOrCreatePenetrance resolves a penetrance vocabulary row by value.
func (t *Tx) GetOrCreatePenetrance(ctx context.Context, value string) (int64, error) {
	return t.getOrCreateVocab(ctx, vocabPenetrance, value)
}

func (t *Tx) getOrCreateVocab(ctx context.Context, table, value string) (int64, error) {
	if value == "" {
		value = VocabUnknown
	}

	var id int64
	err := t.queryRow(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE value = ?`, table), value).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("looking up %s value %q: %w", table, value, err)
	}

	id, err = t.insertID(ctx, fmt.Sprintf(`INSERT INTO %s (value) VALUES (?) RETURNING id`, table), value)
	if err != nil {
		return 0, fmt.Errorf("creating %s value %q: %w", table, value, err)
	}
	return id, nil
}
