// Package importer ingests external panel payloads and reconciles their
// genes and regions against the entity store.
package importer

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/genepanel-curator/internal/association"
	"github.com/genepanel-curator/internal/domain"
	"github.com/genepanel-curator/internal/store"
)

// Config carries the vocabulary constants the importer filters on. The
// registry's highest rank is the only one eligible for new automatic
// inclusion.
type Config struct {
	// GreenConfidence is the numeric rank treated as high confidence.
	GreenConfidence int

	// OmitHGNCIDs lists gene ids excluded from import regardless of
	// confidence.
	OmitHGNCIDs []string
}

// DefaultConfig matches the upstream registry's confidence scale.
func DefaultConfig() Config {
	return Config{GreenConfidence: 3}
}

// Importer reconciles one external panel payload at a time against the
// store. Each ImportPanel call is one atomic transaction.
type Importer struct {
	store *store.Store
	assoc *association.Manager
	cfg   Config
	omit  map[string]bool
	log   *logrus.Logger
}

// Result summarizes what one import call did.
type Result struct {
	PanelID         int64
	PanelCreated    bool
	GenesLinked     int
	GenesSkipped    int
	GenesDowngraded int
	RegionsLinked   int
	ChildPanels     int
	LinksFlagged    int
}

// New creates a panel importer.
func New(s *store.Store, assoc *association.Manager, cfg Config, logger *logrus.Logger) *Importer {
	omit := make(map[string]bool, len(cfg.OmitHGNCIDs))
	for _, id := range cfg.OmitHGNCIDs {
		omit[id] = true
	}
	if cfg.GreenConfidence == 0 {
		cfg.GreenConfidence = DefaultConfig().GreenConfidence
	}
	return &Importer{
		store: s,
		assoc: assoc,
		cfg:   cfg,
		omit:  omit,
		log:   logger,
	}
}

// ImportPanel imports one normalized payload: panel identity, gene and
// region reconciliation, and the supersession pass for any older version the
// payload's external id replaces. Malformed payloads fail before any
// transaction opens so a batch caller can log and move on.
func (im *Importer) ImportPanel(ctx context.Context, payload *domain.PanelPayload) (*Result, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	result := &Result{}
	err := im.store.WithTx(ctx, func(tx *store.Tx) error {
		if payload.IsSuperPanel {
			return im.importSuperPanel(ctx, tx, payload, result)
		}
		_, err := im.importOnePanel(ctx, tx, payload, domain.PanelTypeStandard, result)
		return err
	})
	if err != nil {
		return nil, err
	}

	im.log.WithFields(logrus.Fields{
		"external_id":   payload.ExternalID,
		"version":       payload.Version,
		"panel_created": result.PanelCreated,
		"genes_linked":  result.GenesLinked,
		"genes_skipped": result.GenesSkipped,
		"downgraded":    result.GenesDowngraded,
		"regions":       result.RegionsLinked,
	}).Info("Panel import complete")
	return result, nil
}

// ImportAll imports a batch of payloads, one transaction each. A malformed
// payload aborts only its own panel; the batch keeps going. Every log line
// of one batch carries the same run id.
func (im *Importer) ImportAll(ctx context.Context, payloads []*domain.PanelPayload) (imported, failed int) {
	runID := uuid.NewString()
	log := im.log.WithField("run_id", runID)
	log.WithField("panels", len(payloads)).Info("Panel batch import starting")

	for _, payload := range payloads {
		if _, err := im.ImportPanel(ctx, payload); err != nil {
			failed++
			log.WithFields(logrus.Fields{
				"external_id": payload.ExternalID,
				"error":       err,
			}).Error("Skipping panel")
			continue
		}
		imported++
	}

	log.WithFields(logrus.Fields{
		"imported": imported,
		"failed":   failed,
	}).Info("Panel batch import finished")
	return imported, failed
}

// importOnePanel runs the panel identity and gene/region reconciliation for
// one payload inside the caller's transaction, returning the panel row.
func (im *Importer) importOnePanel(ctx context.Context, tx *store.Tx, payload *domain.PanelPayload, panelType domain.PanelType, result *Result) (*domain.Panel, error) {
	normalized, err := domain.NormalizeVersion(payload.Version)
	if err != nil {
		return nil, err
	}

	panel, created, err := tx.GetOrCreatePanel(ctx, &domain.Panel{
		ExternalID:        payload.ExternalID,
		Name:              payload.Name,
		Version:           payload.Version,
		NormalizedVersion: normalized,
		Source:            payload.Source,
		Type:              panelType,
	})
	if err != nil {
		return nil, err
	}
	result.PanelID = panel.ID
	result.PanelCreated = created

	if created {
		if err := im.supersedeOlderVersions(ctx, tx, panel, result); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(payload.Genes))
	for i := range payload.Genes {
		if err := im.reconcileGene(ctx, tx, panel, created, &payload.Genes[i], seen, result); err != nil {
			return nil, err
		}
	}

	for i := range payload.Regions {
		if err := im.reconcileRegion(ctx, tx, panel, created, &payload.Regions[i], result); err != nil {
			return nil, err
		}
	}

	return panel, nil
}

// reconcileGene applies the confidence gate and link reconciliation for one
// gene entry.
func (im *Importer) reconcileGene(ctx context.Context, tx *store.Tx, panel *domain.Panel, panelCreated bool, g *domain.GenePayload, seen map[string]bool, result *Result) error {
	if g.HGNCID == "" {
		// No join key; cannot be stored
		result.GenesSkipped++
		im.log.WithFields(logrus.Fields{
			"panel":  panel.ExternalID,
			"symbol": g.Symbol,
		}).Warn("Gene without HGNC id skipped")
		return nil
	}
	if im.omit[g.HGNCID] {
		result.GenesSkipped++
		return nil
	}

	if seen[g.HGNCID] {
		// Upstream data anomaly: the same gene twice in one payload,
		// sometimes with differing confidence. The first-seen link wins;
		// a later duplicate is never evaluated against the existing link,
		// so even a sub-green duplicate cannot downgrade it.
		im.log.WithFields(logrus.Fields{
			"panel":      panel.ExternalID,
			"hgnc_id":    g.HGNCID,
			"confidence": g.Confidence,
		}).Warn("Duplicate gene in payload ignored")
		return nil
	}
	seen[g.HGNCID] = true

	if g.Confidence < im.cfg.GreenConfidence {
		return im.handleBelowGreen(ctx, tx, panel, g, result)
	}

	gene, _, err := tx.GetOrCreateGene(ctx, g.HGNCID, g.Symbol, g.AliasSymbols)
	if err != nil {
		return err
	}

	link, linkCreated, err := tx.GetOrCreatePanelGene(ctx, panel.ID, gene.ID, store.PanelGeneAttrs{
		Confidence:    strconv.Itoa(g.Confidence),
		MOI:           g.ModeOfInheritance,
		MOP:           g.ModeOfPathogenicity,
		Penetrance:    g.Penetrance,
		Justification: g.Justification,
		Active:        true,
		Pending:       !panelCreated,
	})
	if err != nil {
		return err
	}

	if linkCreated {
		result.GenesLinked++
		note := domain.NoteCreated(panel.Source)
		if !panelCreated {
			// A gene appeared on a known panel version without a version
			// bump; someone must confirm intent.
			note = domain.NoteGeneAddedToExistingPanel(panel.Source)
			result.LinksFlagged++
		}
		return tx.AddPanelGeneHistory(ctx, link.ID, note, sourceUser(panel.Source))
	}

	if link.Justification != g.Justification {
		if err := tx.UpdatePanelGeneJustification(ctx, link.ID, g.Justification); err != nil {
			return err
		}
		return tx.AddPanelGeneHistory(ctx, link.ID,
			domain.NoteJustificationChanged(link.Justification, g.Justification),
			sourceUser(panel.Source))
	}
	return nil
}

// handleBelowGreen is the downgrade-detection path: a sub-green gene never
// gains a new link, and an existing active link is deactivated and flagged
// rather than silently dropped.
func (im *Importer) handleBelowGreen(ctx context.Context, tx *store.Tx, panel *domain.Panel, g *domain.GenePayload, result *Result) error {
	gene, err := tx.GeneByHGNC(ctx, g.HGNCID)
	if err != nil {
		if domain.IsNotFound(err) {
			result.GenesSkipped++
			return nil
		}
		return err
	}

	link, err := tx.PanelGene(ctx, panel.ID, gene.ID)
	if err != nil {
		if domain.IsNotFound(err) {
			result.GenesSkipped++
			return nil
		}
		return err
	}

	if !link.Active {
		// Already retired; re-reporting the same downgrade records nothing
		return nil
	}

	if err := tx.UpdatePanelGeneState(ctx, link.ID, false, true); err != nil {
		return err
	}
	result.GenesDowngraded++
	return tx.AddPanelGeneHistory(ctx, link.ID,
		domain.NoteConfidenceLowered(link.Confidence, strconv.Itoa(g.Confidence)),
		sourceUser(panel.Source))
}

// reconcileRegion mirrors gene reconciliation for CNV regions. Regions have
// no omission list and no external id requirement beyond a name.
func (im *Importer) reconcileRegion(ctx context.Context, tx *store.Tx, panel *domain.Panel, panelCreated bool, r *domain.RegionPayload, result *Result) error {
	if r.Name == "" {
		im.log.WithField("panel", panel.ExternalID).Warn("Region without name skipped")
		return nil
	}

	if r.Confidence < im.cfg.GreenConfidence {
		return im.handleRegionBelowGreen(ctx, tx, panel, r)
	}

	region, _, err := tx.GetOrCreateRegion(ctx, &domain.Region{
		Name:        r.Name,
		Chrom:       r.Chrom,
		GRCh37Start: r.GRCh37Start,
		GRCh37End:   r.GRCh37End,
		GRCh38Start: r.GRCh38Start,
		GRCh38End:   r.GRCh38End,
		VariantType: r.VariantType,
	})
	if err != nil {
		return err
	}

	link, linkCreated, err := tx.GetOrCreatePanelRegion(ctx, panel.ID, region.ID, store.RegionAttrs{
		Confidence:         strconv.Itoa(r.Confidence),
		MOI:                r.ModeOfInheritance,
		MOP:                r.ModeOfPathogenicity,
		Penetrance:         r.Penetrance,
		Haploinsufficiency: r.Haploinsufficiency,
		Triplosensitivity:  r.Triplosensitivity,
		RequiredOverlap:    r.RequiredOverlap,
		Justification:      r.Justification,
		Active:             true,
		Pending:            !panelCreated,
	})
	if err != nil {
		return err
	}

	if linkCreated {
		result.RegionsLinked++
		note := domain.NoteCreated(panel.Source)
		if !panelCreated {
			note = domain.NoteGeneAddedToExistingPanel(panel.Source)
		}
		return tx.AddPanelRegionHistory(ctx, link.ID, note, sourceUser(panel.Source))
	}

	if link.Justification != r.Justification {
		if err := tx.UpdatePanelRegionJustification(ctx, link.ID, r.Justification); err != nil {
			return err
		}
		return tx.AddPanelRegionHistory(ctx, link.ID,
			domain.NoteJustificationChanged(link.Justification, r.Justification),
			sourceUser(panel.Source))
	}
	return nil
}

// handleRegionBelowGreen is lookup-only: a sub-green region the store has
// never seen must not leave an orphan row behind.
func (im *Importer) handleRegionBelowGreen(ctx context.Context, tx *store.Tx, panel *domain.Panel, r *domain.RegionPayload) error {
	region, err := tx.RegionByAttrs(ctx, &domain.Region{
		Name:        r.Name,
		Chrom:       r.Chrom,
		GRCh37Start: r.GRCh37Start,
		GRCh37End:   r.GRCh37End,
		GRCh38Start: r.GRCh38Start,
		GRCh38End:   r.GRCh38End,
		VariantType: r.VariantType,
	})
	if err != nil {
		if domain.IsNotFound(err) {
			return nil
		}
		return err
	}

	link, err := tx.PanelRegion(ctx, panel.ID, region.ID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !link.Active {
		return nil
	}

	if err := tx.UpdatePanelRegionState(ctx, link.ID, false, true); err != nil {
		return err
	}
	return tx.AddPanelRegionHistory(ctx, link.ID,
		domain.NoteConfidenceLowered(link.Confidence, strconv.Itoa(r.Confidence)),
		sourceUser(panel.Source))
}

// supersedeOlderVersions runs when panel identity produced a new row: every
// live association pointing at an older version of the same external id is
// flagged for review and provisionally re-linked to the new version, so a
// reviewer sees a proposed successor instead of a silent gap.
func (im *Importer) supersedeOlderVersions(ctx context.Context, tx *store.Tx, panel *domain.Panel, result *Result) error {
	for _, kind := range []domain.LinkKind{domain.LinkPanel, domain.LinkSuperPanel} {
		links, err := tx.CurrentLinksByPanelExternalID(ctx, kind, panel.ExternalID, panel.ID)
		if err != nil {
			return err
		}

		for _, link := range links {
			oldPanel, err := tx.PanelByID(ctx, link.PanelID)
			if err != nil {
				return err
			}

			reason := domain.NoteNewPanelVersion(panel.ExternalID, oldPanel.Version, panel.Version)
			if err := im.assoc.FlagForReview(ctx, tx, link, reason, sourceUser(panel.Source)); err != nil {
				return err
			}
			if _, err := im.assoc.ProvisionalLink(ctx, tx, kind, link.CIID, panel.ID, sourceUser(panel.Source)); err != nil {
				return err
			}
			result.LinksFlagged++
		}
	}
	return nil
}

// sourceUser is the acting user recorded in history for automated imports.
func sourceUser(source string) string {
	if source == "" {
		return domain.SourcePanelRegistry
	}
	return source
}
