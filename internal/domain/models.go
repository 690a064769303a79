package domain

import (
	"time"
)

// Gene is the canonical record for one gene, keyed by its stable HGNC id.
// Display fields (symbol, aliases) are set on creation and afterwards only
// rewritten by the symbol sync pass, never by panel import.
type Gene struct {
	ID              int64
	HGNCID          string
	Symbol          string
	AliasSymbols    []string
	PreviousSymbols []string
	CreatedAt       time.Time
}

// PanelType discriminates ordinary panels, superpanels and the panels
// synthesized from bare HGNC ids in a test directory release.
type PanelType string

const (
	PanelTypeStandard PanelType = "panel"
	PanelTypeSuper    PanelType = "superpanel"
	PanelTypeAdHoc    PanelType = "adhoc"
)

// Panel is one immutable release of a panel. Two rows sharing an external id
// but carrying different versions are successive releases of the same
// conceptual panel and are never merged.
type Panel struct {
	ID                int64
	ExternalID        string
	Name              string
	Version           string
	NormalizedVersion string
	Source            string
	Type              PanelType
	CreatedAt         time.Time
}

// PanelGene links one panel release to one gene, carrying the clinical
// metadata asserted for that gene on that panel. At most one row exists per
// (panel, gene) pair; state changes flip Active/Pending in place.
type PanelGene struct {
	ID            int64
	PanelID       int64
	GeneID        int64
	Confidence    string
	MOI           string
	MOP           string
	Penetrance    string
	Justification string
	Active        bool
	Pending       bool
}

// Region is a CNV-style genomic region with dual-build coordinates. Regions
// are deduplicated on their full attribute tuple so identical regions shared
// across panels reuse one row.
type Region struct {
	ID          int64
	Name        string
	Chrom       string
	GRCh37Start *int64
	GRCh37End   *int64
	GRCh38Start *int64
	GRCh38End   *int64
	VariantType string
}

// PanelRegion links one panel release to one region.
type PanelRegion struct {
	ID                 int64
	PanelID            int64
	RegionID           int64
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

// ClinicalIndication is a named clinical test category keyed by R-code.
// R-codes are not globally unique; lookups by code alone may match several
// rows and that ambiguity is surfaced to the caller.
type ClinicalIndication struct {
	ID         int64
	RCode      string
	Name       string
	GeminiName string
	TestMethod string
	CreatedAt  time.Time
}

// LinkKind selects which association table a CILink row lives in.
type LinkKind string

const (
	LinkPanel      LinkKind = "panel"
	LinkSuperPanel LinkKind = "superpanel"
)

// CILink is a clinical-indication/panel (or superpanel) association.
// Current marks the live assertion; Pending marks it for human review.
// Rows are created once per (CI, panel) pair and mutated in place.
type CILink struct {
	ID           int64
	Kind         LinkKind
	CIID         int64
	PanelID      int64
	Current      bool
	Pending      bool
	ReviewReason string
	TDVersion    string
	ConfigSource string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TestDirectoryRelease is the immutable record of one ingested test
// directory file. Associations reference releases through a join table
// because successive releases reassert the same live association.
type TestDirectoryRelease struct {
	ID           int64
	Release      string
	SourceFile   string
	ConfigSource string
	TDDate       string
	CreatedAt    time.Time
}

// HistoryEntry is one append-only audit row. The Note text is generated from
// the fixed template vocabulary in notes.go; User records the acting source
// ("PanelApp", a username, or a release label).
type HistoryEntry struct {
	ID        int64
	EntityID  int64
	Note      string
	User      string
	CreatedAt time.Time
}

// SymbolRecord is one entry of the bulk HGNC symbol mapping applied by the
// gene symbol sync pass.
type SymbolRecord struct {
	HGNCID          string
	ApprovedSymbol  string
	AliasSymbols    []string
	PreviousSymbols []string
}
