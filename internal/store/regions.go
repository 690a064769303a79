package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/genepanel-curator/internal/domain"
)

// RegionByAttrs finds the region matching the full attribute tuple.
// Coordinate columns are nullable, so candidates matching on the text fields
// are compared in code rather than with engine-specific null-safe SQL.
func (t *Tx) RegionByAttrs(ctx context.Context, r *domain.Region) (*domain.Region, error) {
	rows, err := t.query(ctx, `
		SELECT id, name, chrom, grch37_start, grch37_end, grch38_start, grch38_end, variant_type
		FROM regions
		WHERE name = ? AND chrom = ? AND variant_type = ?`,
		r.Name, r.Chrom, r.VariantType)
	if err != nil {
		return nil, fmt.Errorf("looking up region %s: %w", r.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		candidate, err := scanRegion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning region row: %w", err)
		}
		if sameCoords(candidate, r) {
			return candidate, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating region rows: %w", err)
	}
	return nil, fmt.Errorf("region %s: %w", r.Name, domain.ErrNotFound)
}

// GetOrCreateRegion deduplicates regions on their full attribute tuple so an
// identical region shared across panels reuses one row.
func (t *Tx) GetOrCreateRegion(ctx context.Context, r *domain.Region) (*domain.Region, bool, error) {
	existing, err := t.RegionByAttrs(ctx, r)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	id, err := t.insertID(ctx, `
		INSERT INTO regions (name, chrom, grch37_start, grch37_end, grch38_start, grch38_end, variant_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		r.Name, r.Chrom, nullInt(r.GRCh37Start), nullInt(r.GRCh37End),
		nullInt(r.GRCh38Start), nullInt(r.GRCh38End), r.VariantType)
	if err != nil {
		return nil, false, fmt.Errorf("creating region %s: %w", r.Name, err)
	}

	created := *r
	created.ID = id
	return &created, true, nil
}

// RegionAttrs carries the clinical metadata asserted for a region on a
// panel.
type RegionAttrs struct {
	Confidence         string
	MOI                string
	MOP                string
	Penetrance         string
	Haploinsufficiency string
	Triplosensitivity  string
	RequiredOverlap    int
	Justification      string
	Active             bool
	Pending            bool
}

const panelRegionSelect = `
	SELECT pr.id, pr.panel_id, pr.region_id, c.value, moi.value, mop.value, pen.value,
	       pr.haploinsufficiency, pr.triplosensitivity, pr.required_overlap,
	       pr.justification, pr.active, pr.pending
	FROM panel_regions pr
	JOIN confidences c ON c.id = pr.confidence_id
	JOIN modes_of_inheritance moi ON moi.id = pr.moi_id
	JOIN modes_of_pathogenicity mop ON mop.id = pr.mop_id
	JOIN penetrances pen ON pen.id = pr.penetrance_id`

// PanelRegion returns the link row for one (panel, region) pair.
func (t *Tx) PanelRegion(ctx context.Context, panelID, regionID int64) (*domain.PanelRegion, error) {
	row := t.queryRow(ctx, panelRegionSelect+`
		WHERE pr.panel_id = ? AND pr.region_id = ?`, panelID, regionID)

	pr, err := scanPanelRegion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("panel region (%d, %d): %w", panelID, regionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting panel region: %w", err)
	}
	return pr, nil
}

// GetOrCreatePanelRegion fetches or creates the link for one (panel, region)
// pair.
func (t *Tx) GetOrCreatePanelRegion(ctx context.Context, panelID, regionID int64, attrs RegionAttrs) (*domain.PanelRegion, bool, error) {
	existing, err := t.PanelRegion(ctx, panelID, regionID)
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
		INSERT INTO panel_regions (panel_id, region_id, confidence_id, moi_id, mop_id, penetrance_id,
		                           haploinsufficiency, triplosensitivity, required_overlap,
		                           justification, active, pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		panelID, regionID, confID, moiID, mopID, penID,
		attrs.Haploinsufficiency, attrs.Triplosensitivity, attrs.RequiredOverlap,
		attrs.Justification, attrs.Active, attrs.Pending)
	if err != nil {
		return nil, false, fmt.Errorf("creating panel region (%d, %d): %w", panelID, regionID, err)
	}

	return &domain.PanelRegion{
		ID:                 id,
		PanelID:            panelID,
		RegionID:           regionID,
		Confidence:         orUnknown(attrs.Confidence),
		MOI:                orUnknown(attrs.MOI),
		MOP:                orUnknown(attrs.MOP),
		Penetrance:         orUnknown(attrs.Penetrance),
		Haploinsufficiency: attrs.Haploinsufficiency,
		Triplosensitivity:  attrs.Triplosensitivity,
		RequiredOverlap:    attrs.RequiredOverlap,
		Justification:      attrs.Justification,
		Active:             attrs.Active,
		Pending:            attrs.Pending,
	}, true, nil
}

// UpdatePanelRegionJustification rewrites the justification of one link.
func (t *Tx) UpdatePanelRegionJustification(ctx context.Context, id int64, justification string) error {
	if _, err := t.exec(ctx, `
		UPDATE panel_regions SET justification = ? WHERE id = ?`,
		justification, id); err != nil {
		return fmt.Errorf("updating panel region justification: %w", err)
	}
	return nil
}

// UpdatePanelRegionState flips the active/pending flags of one link.
func (t *Tx) UpdatePanelRegionState(ctx context.Context, id int64, active, pending bool) error {
	if _, err := t.exec(ctx, `
		UPDATE panel_regions SET active = ?, pending = ? WHERE id = ?`,
		active, pending, id); err != nil {
		return fmt.Errorf("updating panel region state: %w", err)
	}
	return nil
}

// PanelRegionsForPanel returns every region link of one panel.
func (t *Tx) PanelRegionsForPanel(ctx context.Context, panelID int64) ([]*domain.PanelRegion, error) {
	rows, err := t.query(ctx, panelRegionSelect+`
		WHERE pr.panel_id = ?
		ORDER BY pr.id`, panelID)
	if err != nil {
		return nil, fmt.Errorf("getting panel regions: %w", err)
	}
	defer rows.Close()

	var links []*domain.PanelRegion
	for rows.Next() {
		pr, err := scanPanelRegion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning panel region row: %w", err)
		}
		links = append(links, pr)
	}
	return links, rows.Err()
}

func scanRegion(s rowScanner) (*domain.Region, error) {
	var r domain.Region
	var s37, e37, s38, e38 sql.NullInt64

	err := s.Scan(&r.ID, &r.Name, &r.Chrom, &s37, &e37, &s38, &e38, &r.VariantType)
	if err != nil {
		return nil, err
	}
	r.GRCh37Start = fromNull(s37)
	r.GRCh37End = fromNull(e37)
	r.GRCh38Start = fromNull(s38)
	r.GRCh38End = fromNull(e38)
	return &r, nil
}

func scanPanelRegion(s rowScanner) (*domain.PanelRegion, error) {
	var pr domain.PanelRegion
	err := s.Scan(&pr.ID, &pr.PanelID, &pr.RegionID, &pr.Confidence, &pr.MOI, &pr.MOP, &pr.Penetrance,
		&pr.Haploinsufficiency, &pr.Triplosensitivity, &pr.RequiredOverlap,
		&pr.Justification, &pr.Active, &pr.Pending)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

func sameCoords(a, b *domain.Region) bool {
	return eqInt(a.GRCh37Start, b.GRCh37Start) &&
		eqInt(a.GRCh37End, b.GRCh37End) &&
		eqInt(a.GRCh38Start, b.GRCh38Start) &&
		eqInt(a.GRCh38End, b.GRCh38End)
}

func eqInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fromNull(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
