package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/genepanel-curator/internal/domain"
)

const ciColumns = `id, r_code, name, gemini_name, test_method, created_at`

// CIsByRCode returns every clinical indication carrying one R-code. R-codes
// are not unique; callers decide what multiple matches mean.
func (t *Tx) CIsByRCode(ctx context.Context, rCode string) ([]*domain.ClinicalIndication, error) {
	rows, err := t.query(ctx, `
		SELECT `+ciColumns+`
		FROM clinical_indications
		WHERE r_code = ?
		ORDER BY id`, rCode)
	if err != nil {
		return nil, fmt.Errorf("getting clinical indications by R-code: %w", err)
	}
	defer rows.Close()

	var cis []*domain.ClinicalIndication
	for rows.Next() {
		ci, err := scanCI(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning clinical indication row: %w", err)
		}
		cis = append(cis, ci)
	}
	return cis, rows.Err()
}

// CIByID returns one clinical indication.
func (t *Tx) CIByID(ctx context.Context, id int64) (*domain.ClinicalIndication, error) {
	row := t.queryRow(ctx, `SELECT `+ciColumns+` FROM clinical_indications WHERE id = ?`, id)
	ci, err := scanCI(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("clinical indication %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting clinical indication by id: %w", err)
	}
	return ci, nil
}

// ResolveCIByRCode resolves an R-code the caller expects to be unambiguous.
// Zero matches is ErrNotFound; several matches is an AmbiguousError naming
// the code — never silently picking one.
func (t *Tx) ResolveCIByRCode(ctx context.Context, rCode string) (*domain.ClinicalIndication, error) {
	cis, err := t.CIsByRCode(ctx, rCode)
	if err != nil {
		return nil, err
	}
	switch len(cis) {
	case 0:
		return nil, fmt.Errorf("clinical indication %s: %w", rCode, domain.ErrNotFound)
	case 1:
		return cis[0], nil
	default:
		return nil, &domain.AmbiguousError{Kind: "clinical indication", Selector: rCode, Matches: len(cis)}
	}
}

// GetOrCreateCI fetches or creates a clinical indication keyed on
// (r_code, name). A release that renames an indication therefore yields a
// new row; superseding the old row's associations is the reconciler's job.
func (t *Tx) GetOrCreateCI(ctx context.Context, rCode, name, geminiName, testMethod string) (*domain.ClinicalIndication, bool, error) {
	row := t.queryRow(ctx, `
		SELECT `+ciColumns+`
		FROM clinical_indications
		WHERE r_code = ? AND name = ?`, rCode, name)

	existing, err := scanCI(row)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("looking up clinical indication %s: %w", rCode, err)
	}

	now := t.now()
	id, err := t.insertID(ctx, `
		INSERT INTO clinical_indications (r_code, name, gemini_name, test_method, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		rCode, name, geminiName, testMethod, now)
	if err != nil {
		return nil, false, fmt.Errorf("creating clinical indication %s: %w", rCode, err)
	}

	return &domain.ClinicalIndication{
		ID:         id,
		RCode:      rCode,
		Name:       name,
		GeminiName: geminiName,
		TestMethod: testMethod,
		CreatedAt:  now,
	}, true, nil
}

func scanCI(s rowScanner) (*domain.ClinicalIndication, error) {
	var ci domain.ClinicalIndication
	err := s.Scan(&ci.ID, &ci.RCode, &ci.Name, &ci.GeminiName, &ci.TestMethod, &ci.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ci, nil
}
