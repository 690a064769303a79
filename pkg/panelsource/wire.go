package panelsource

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/genepanel-curator/internal/domain"
)

// signedOffPage is one page of the signed-off panel listing.
type signedOffPage struct {
	Count    int                `json:"count"`
	Next     string             `json:"next"`
	Previous string             `json:"previous"`
	Results  []signedOffListing `json:"results"`
}

type signedOffListing struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// panelResponse is the registry's panel detail document. Fields the
// importer does not consume are still declared so strict decoding can tell
// a format drift from a typo.
type panelResponse struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Version      string        `json:"version"`
	DiseaseGroup string        `json:"disease_group"`
	DiseaseSub   string        `json:"disease_sub_group"`
	Status       string        `json:"status"`
	Types        []panelType   `json:"types"`
	Genes        []geneEntry   `json:"genes"`
	Regions      []regionEntry `json:"regions"`
}

type panelType struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

type geneEntry struct {
	GeneData   geneData  `json:"gene_data"`
	Confidence string    `json:"confidence_level"`
	MOI        string    `json:"mode_of_inheritance"`
	MOP        string    `json:"mode_of_pathogenicity"`
	Penetrance string    `json:"penetrance"`
	Evidence   []string  `json:"evidence"`
	Panel      *panelRef `json:"panel"`
}

type geneData struct {
	HGNCID       string   `json:"hgnc_id"`
	Symbol       string   `json:"gene_symbol"`
	AliasSymbols []string `json:"alias"`
}

type regionEntry struct {
	Name               string    `json:"entity_name"`
	VerboseName        string    `json:"verbose_name"`
	Chromosome         string    `json:"chromosome"`
	GRCh37Coords       []int64   `json:"grch37_coordinates"`
	GRCh38Coords       []int64   `json:"grch38_coordinates"`
	TypeOfVariants     string    `json:"type_of_variants"`
	Confidence         string    `json:"confidence_level"`
	MOI                string    `json:"mode_of_inheritance"`
	MOP                string    `json:"mode_of_pathogenicity"`
	Penetrance         string    `json:"penetrance"`
	Haploinsufficiency string    `json:"haploinsufficiency_score"`
	Triplosensitivity  string    `json:"triplosensitivity_score"`
	RequiredOverlap    int       `json:"required_overlap_percentage"`
	Evidence           []string  `json:"evidence"`
	Panel              *panelRef `json:"panel"`
}

type panelRef struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// normalize converts the wire document into the validated import payload.
func (p *panelResponse) normalize() (*domain.PanelPayload, error) {
	payload := &domain.PanelPayload{
		ExternalID:   strconv.FormatInt(p.ID, 10),
		Name:         p.Name,
		Version:      p.Version,
		Source:       domain.SourcePanelRegistry,
		IsSuperPanel: p.isSuperPanel(),
	}

	for _, g := range p.Genes {
		confidence, err := parseConfidence(g.Confidence)
		if err != nil {
			return nil, fmt.Errorf("panel %d gene %s: %w", p.ID, g.GeneData.HGNCID, err)
		}
		payload.Genes = append(payload.Genes, domain.GenePayload{
			HGNCID:              g.GeneData.HGNCID,
			Symbol:              g.GeneData.Symbol,
			AliasSymbols:        g.GeneData.AliasSymbols,
			Confidence:          confidence,
			ModeOfInheritance:   g.MOI,
			ModeOfPathogenicity: g.MOP,
			Penetrance:          g.Penetrance,
			Justification:       strings.Join(g.Evidence, ";"),
			ParentPanel:         g.Panel.toRef(),
		})
	}

	for _, r := range p.Regions {
		confidence, err := parseConfidence(r.Confidence)
		if err != nil {
			return nil, fmt.Errorf("panel %d region %s: %w", p.ID, r.Name, err)
		}
		region := domain.RegionPayload{
			Name:                r.Name,
			Chrom:               r.Chromosome,
			VariantType:         r.TypeOfVariants,
			Confidence:          confidence,
			ModeOfInheritance:   r.MOI,
			ModeOfPathogenicity: r.MOP,
			Penetrance:          r.Penetrance,
			Haploinsufficiency:  r.Haploinsufficiency,
			Triplosensitivity:   r.Triplosensitivity,
			RequiredOverlap:     r.RequiredOverlap,
			Justification:       strings.Join(r.Evidence, ";"),
			ParentPanel:         r.Panel.toRef(),
		}
		region.GRCh37Start, region.GRCh37End = coordPair(r.GRCh37Coords)
		region.GRCh38Start, region.GRCh38End = coordPair(r.GRCh38Coords)
		payload.Regions = append(payload.Regions, region)
	}

	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

func (p *panelResponse) isSuperPanel() bool {
	for _, t := range p.Types {
		if strings.EqualFold(t.Name, "Super Panel") {
			return true
		}
	}
	return false
}

func (r *panelRef) toRef() *domain.ParentPanelRef {
	if r == nil {
		return nil
	}
	return &domain.ParentPanelRef{
		ExternalID: strconv.FormatInt(r.ID, 10),
		Name:       r.Name,
		Version:    r.Version,
	}
}

// parseConfidence maps the registry's string confidence levels onto the
// numeric scale the importer gates on. An empty level counts as zero.
func parseConfidence(level string) (int, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(level)
	if err != nil {
		return 0, fmt.Errorf("%w: confidence level %q", domain.ErrMalformedPayload, level)
	}
	return n, nil
}

func coordPair(coords []int64) (*int64, *int64) {
	if len(coords) != 2 {
		return nil, nil
	}
	start, end := coords[0], coords[1]
	return &start, &end
}
