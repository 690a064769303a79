package domain

import (
	"fmt"
)

// PanelPayload is one normalized panel (or superpanel) fetched from the
// external registry. Fields are validated before import; unknown wire fields
// are rejected during deserialization, not absorbed.
type PanelPayload struct {
	ExternalID   string
	Name         string
	Version      string
	Source       string
	IsSuperPanel bool
	Genes        []GenePayload
	Regions      []RegionPayload
}

// GenePayload is one gene entry of a panel payload. In superpanel payloads
// the registry flattens child panels into one list; ParentPanel then carries
// the child panel each entry belongs to.
type GenePayload struct {
	HGNCID              string
	Symbol              string
	AliasSymbols        []string
	Confidence          int
	ModeOfInheritance   string
	ModeOfPathogenicity string
	Penetrance          string
	Justification       string
	ParentPanel         *ParentPanelRef
}

// RegionPayload is one region entry of a panel payload.
type RegionPayload struct {
	Name                string
	Chrom               string
	GRCh37Start         *int64
	GRCh37End           *int64
	GRCh38Start         *int64
	GRCh38End           *int64
	VariantType         string
	Confidence          int
	ModeOfInheritance   string
	ModeOfPathogenicity string
	Penetrance          string
	Haploinsufficiency  string
	Triplosensitivity   string
	RequiredOverlap     int
	Justification       string
	ParentPanel         *ParentPanelRef
}

// ParentPanelRef identifies the child panel a flattened superpanel entry
// belongs to.
type ParentPanelRef struct {
	ExternalID string
	Name       string
	Version    string
}

// Validate reports whether the payload carries the fields import depends on.
// A failure aborts import of this one panel only, never a whole batch.
func (p *PanelPayload) Validate() error {
	if p.ExternalID == "" {
		return fmt.Errorf("%w: missing external id", ErrMalformedPayload)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: panel %s has no name", ErrMalformedPayload, p.ExternalID)
	}
	if p.Version == "" {
		return fmt.Errorf("%w: panel %s has no version", ErrMalformedPayload, p.ExternalID)
	}
	if _, err := NormalizeVersion(p.Version); err != nil {
		return fmt.Errorf("%w: panel %s version %q: %v", ErrMalformedPayload, p.ExternalID, p.Version, err)
	}
	return nil
}

// TestDirectory is one parsed test directory release: the complete mapping
// from clinical indications to the panels and genes asserted for them.
type TestDirectory struct {
	Release      string
	SourceFile   string
	ConfigSource string
	Date         string
	Indications  []TDIndication
}

// TDIndication is one clinical indication entry of a test directory release.
// Panels holds external panel ids, except entries prefixed "HGNC:" which are
// bare gene ids accumulated into an ad hoc gene panel.
type TDIndication struct {
	Code       string
	Name       string
	GeminiName string
	TestMethod string
	Panels     []string
}

// Validate reports whether the release carries enough identity to make
// re-ingestion idempotent.
func (td *TestDirectory) Validate() error {
	if td.Release == "" {
		return fmt.Errorf("%w: test directory has no release label", ErrMalformedPayload)
	}
	if td.ConfigSource == "" {
		return fmt.Errorf("%w: test directory release %s has no config source", ErrMalformedPayload, td.Release)
	}
	return nil
}
