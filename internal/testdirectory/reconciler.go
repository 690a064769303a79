package testdirectory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/genepanel-curator/internal/association"
	"github.com/genepanel-curator/internal/domain"
	"github.com/genepanel-curator/internal/store"
)

// ErrReleaseExists is returned when a release label has already been
// ingested for the same config source and force was not set.
var ErrReleaseExists = fmt.Errorf("test directory release already ingested")

// Reconciler converges the store's live associations to match one test
// directory release at a time.
type Reconciler struct {
	store *store.Store
	assoc *association.Manager
	log   *logrus.Logger
}

// Result summarizes one release reconciliation.
type Result struct {
	ReleaseID     int64
	Indications   int
	LinksAsserted int
	LinksFlagged  int
	CIsSuperseded int
	AdHocPanels   int
	PanelsSkipped int
}

// NewReconciler creates a test directory reconciler.
func NewReconciler(s *store.Store, assoc *association.Manager, logger *logrus.Logger) *Reconciler {
	return &Reconciler{store: s, assoc: assoc, log: logger}
}

// ImportRelease reconciles one parsed release in a single transaction. A
// release label already ingested for the same config source is rejected
// unless force is set; force re-runs the reconciliation but never duplicates
// rows, so it is safe on a corrected export of the same label.
func (r *Reconciler) ImportRelease(ctx context.Context, td *domain.TestDirectory, force bool) (*Result, error) {
	if err := td.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	r.log.WithFields(logrus.Fields{
		"run_id":        runID,
		"release":       td.Release,
		"config_source": td.ConfigSource,
		"force":         force,
	}).Info("Test directory reconciliation starting")

	result := &Result{}
	err := r.store.WithTx(ctx, func(tx *store.Tx) error {
		release, created, err := tx.GetOrCreateTDRelease(ctx, td.Release, td.SourceFile, td.ConfigSource, td.Date)
		if err != nil {
			return err
		}
		if !created && !force {
			return fmt.Errorf("%w: %s (%s)", ErrReleaseExists, td.Release, td.ConfigSource)
		}
		result.ReleaseID = release.ID

		asserted := newReleaseAssertions()
		for i := range td.Indications {
			if err := r.reconcileIndication(ctx, tx, td, release, &td.Indications[i], asserted, result); err != nil {
				return err
			}
		}

		// Dropped-panel detection runs once per CI against everything the
		// whole release asserted for it. A CI split across several entries
		// must see the union, not any single entry's slice.
		for _, ci := range asserted.cis {
			if err := r.flagDroppedPanels(ctx, tx, td, ci, asserted.panels[ci.ID], result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"run_id":         runID,
		"release":        td.Release,
		"config_source":  td.ConfigSource,
		"indications":    result.Indications,
		"links_asserted": result.LinksAsserted,
		"links_flagged":  result.LinksFlagged,
		"panels_skipped": result.PanelsSkipped,
	}).Info("Test directory release reconciled")
	return result, nil
}

// releaseAssertions accumulates the panel external ids a release asserts per
// CI, across every indication entry naming that CI. cis preserves first-seen
// order for the final pass.
type releaseAssertions struct {
	cis    []*domain.ClinicalIndication
	panels map[int64]map[string]bool
}

func newReleaseAssertions() *releaseAssertions {
	return &releaseAssertions{panels: make(map[int64]map[string]bool)}
}

// touch registers a CI for the dropped-panel pass even when no panel of its
// entry could be linked.
func (a *releaseAssertions) touch(ci *domain.ClinicalIndication) {
	if _, ok := a.panels[ci.ID]; !ok {
		a.panels[ci.ID] = make(map[string]bool)
		a.cis = append(a.cis, ci)
	}
}

func (a *releaseAssertions) add(ci *domain.ClinicalIndication, externalID string) {
	a.touch(ci)
	a.panels[ci.ID][externalID] = true
}

// reconcileIndication runs the per-indication algorithm: CI resolution with
// name-change supersession, explicit panel linking, and ad hoc gene panel
// synthesis. Asserted panel ids accumulate per CI; the dropped-panel pass
// runs after every entry has been processed.
func (r *Reconciler) reconcileIndication(ctx context.Context, tx *store.Tx, td *domain.TestDirectory, release *domain.TestDirectoryRelease, ind *domain.TDIndication, asserted *releaseAssertions, result *Result) error {
	if ind.Code == "" || ind.Name == "" {
		r.log.WithFields(logrus.Fields{
			"code": ind.Code,
			"name": ind.Name,
		}).Error("Indication entry missing code or name, skipped")
		return nil
	}
	result.Indications++

	ci, err := r.resolveCI(ctx, tx, td, ind, result)
	if err != nil {
		return err
	}
	asserted.touch(ci)

	var geneIDs []string
	for _, entry := range ind.Panels {
		if isGeneEntry(entry) {
			geneIDs = append(geneIDs, entry)
			continue
		}
		externalID, err := r.linkExternalPanel(ctx, tx, td, release, ci, entry, result)
		if err != nil {
			return err
		}
		if externalID != "" {
			asserted.add(ci, externalID)
		}
	}

	if len(geneIDs) > 0 {
		externalID, err := r.linkAdHocPanel(ctx, tx, td, release, ci, geneIDs, result)
		if err != nil {
			return err
		}
		asserted.add(ci, externalID)
	}
	return nil
}

// resolveCI finds or creates the clinical indication for an entry. When the
// code already exists under a different name and this release is numerically
// newer than the one that asserted the old associations, the old CI's live
// links are deactivated and a fresh CI row takes over; an out-of-order older
// file never supersedes anything.
func (r *Reconciler) resolveCI(ctx context.Context, tx *store.Tx, td *domain.TestDirectory, ind *domain.TDIndication, result *Result) (*domain.ClinicalIndication, error) {
	existing, err := tx.CIsByRCode(ctx, ind.Code)
	if err != nil {
		return nil, err
	}

	for _, ci := range existing {
		if ci.Name == ind.Name {
			return ci, nil
		}
	}

	ci, _, err := tx.GetOrCreateCI(ctx, ind.Code, ind.Name, ind.GeminiName, ind.TestMethod)
	if err != nil {
		return nil, err
	}

	for _, old := range existing {
		superseded, err := r.supersedeRenamedCI(ctx, tx, td, old, ind)
		if err != nil {
			return nil, err
		}
		if superseded {
			result.CIsSuperseded++
		}
	}
	return ci, nil
}

// supersedeRenamedCI deactivates the live links of a same-code CI whose name
// this release replaced, guarded per link by the version that established
// it.
func (r *Reconciler) supersedeRenamedCI(ctx context.Context, tx *store.Tx, td *domain.TestDirectory, old *domain.ClinicalIndication, ind *domain.TDIndication) (bool, error) {
	any := false
	for _, kind := range []domain.LinkKind{domain.LinkPanel, domain.LinkSuperPanel} {
		links, err := tx.CurrentLinksForCI(ctx, kind, old.ID)
		if err != nil {
			return false, err
		}
		for _, link := range links {
			if domain.CompareVersions(td.Release, link.TDVersion) <= 0 {
				// This file is not newer than what asserted the link
				continue
			}
			note := domain.NoteCISuperseded(old.RCode, old.Name, ind.Name, td.Release)
			if err := r.assoc.DeactivateLinkWithNote(ctx, tx, link, note, td.ConfigSource); err != nil {
				return false, err
			}
			any = true
			r.log.WithFields(logrus.Fields{
				"r_code":   old.RCode,
				"old_name": old.Name,
				"new_name": ind.Name,
				"release":  td.Release,
			}).Info("Indication renamed, association superseded")
		}
	}
	return any, nil
}

// linkExternalPanel asserts one CI to external-panel association for this
// release, picking the newest stored version of the panel. An unknown id is
// logged and skipped; upstream retires panels and old directory files keep
// referencing them.
func (r *Reconciler) linkExternalPanel(ctx context.Context, tx *store.Tx, td *domain.TestDirectory, release *domain.TestDirectoryRelease, ci *domain.ClinicalIndication, externalID string, result *Result) (string, error) {
	panels, err := tx.PanelsByExternalID(ctx, externalID)
	if err != nil {
		return "", err
	}
	if len(panels) == 0 {
		result.PanelsSkipped++
		r.log.WithFields(logrus.Fields{
			"r_code":      ci.RCode,
			"external_id": externalID,
		}).Warn("Panel id not in store, skipped")
		return "", nil
	}

	// Newest version first
	panel := panels[0]
	kind := domain.LinkPanel
	if panel.Type == domain.PanelTypeSuper {
		kind = domain.LinkSuperPanel
	}

	if err := r.assertLink(ctx, tx, td, release, kind, ci, panel.ID, result); err != nil {
		return "", err
	}
	return externalID, nil
}

// assertLink is the link maintenance shared by explicit and ad hoc panels:
// get-or-create live, refresh td provenance fields with a history note when
// they moved, and tie the link to this release row.
func (r *Reconciler) assertLink(ctx context.Context, tx *store.Tx, td *domain.TestDirectory, release *domain.TestDirectoryRelease, kind domain.LinkKind, ci *domain.ClinicalIndication, panelID int64, result *Result) error {
	link, err := tx.CILink(ctx, kind, ci.ID, panelID)
	switch {
	case domain.IsNotFound(err):
		link, _, err = tx.GetOrCreateCILink(ctx, kind, ci.ID, panelID, store.CILinkOpts{
			Current:      true,
			TDVersion:    td.Release,
			ConfigSource: td.ConfigSource,
		})
		if err != nil {
			return err
		}
		if err := tx.AddCILinkHistory(ctx, kind, link.ID, domain.NoteCreated(td.ConfigSource), td.ConfigSource); err != nil {
			return err
		}
		result.LinksAsserted++
	case err != nil:
		return err
	default:
		if !link.Current {
			if _, err := r.assoc.Activate(ctx, tx, kind, ci.ID, panelID, td.ConfigSource); err != nil {
				return err
			}
			result.LinksAsserted++
		}
		if link.TDVersion != td.Release || link.ConfigSource != td.ConfigSource {
			if err := tx.UpdateCILinkTDFields(ctx, kind, link.ID, td.Release, td.ConfigSource); err != nil {
				return err
			}
			note := domain.NoteTDFieldsChanged(link.TDVersion, td.Release, link.ConfigSource, td.ConfigSource)
			if err := tx.AddCILinkHistory(ctx, kind, link.ID, note, td.ConfigSource); err != nil {
				return err
			}
		}
	}

	_, err = tx.LinkReleaseToCILink(ctx, kind, link.ID, release.ID)
	return err
}

// linkAdHocPanel synthesizes the per-CI gene panel for bare HGNC entries.
// The panel's name is the sorted comma-joined id list and its source is the
// release's config source, so the same gene set named by any later release
// resolves to the same row.
func (r *Reconciler) linkAdHocPanel(ctx context.Context, tx *store.Tx, td *domain.TestDirectory, release *domain.TestDirectoryRelease, ci *domain.ClinicalIndication, geneIDs []string, result *Result) (string, error) {
	ids := dedupeSorted(geneIDs)
	name := strings.Join(ids, ",")

	normalized, err := domain.NormalizeVersion("1.0")
	if err != nil {
		return "", err
	}
	panel, created, err := tx.GetOrCreatePanel(ctx, &domain.Panel{
		ExternalID:        name,
		Name:              name,
		Version:           "1.0",
		NormalizedVersion: normalized,
		Source:            td.ConfigSource,
		Type:              domain.PanelTypeAdHoc,
	})
	if err != nil {
		return "", err
	}
	if created {
		result.AdHocPanels++
	}

	for _, hgncID := range ids {
		gene, _, err := tx.GetOrCreateGene(ctx, hgncID, "", nil)
		if err != nil {
			return "", err
		}
		link, linkCreated, err := tx.GetOrCreatePanelGene(ctx, panel.ID, gene.ID, store.PanelGeneAttrs{
			Confidence: store.VocabUnknown,
			Active:     true,
		})
		if err != nil {
			return "", err
		}
		if linkCreated {
			if err := tx.AddPanelGeneHistory(ctx, link.ID, domain.NoteCreated(td.ConfigSource), td.ConfigSource); err != nil {
				return "", err
			}
		}
	}

	if err := r.assertLink(ctx, tx, td, release, domain.LinkPanel, ci, panel.ID, result); err != nil {
		return "", err
	}
	return name, nil
}

// flagDroppedPanels is the cross-cutting pass: any live association of this
// CI whose panel the release no longer names gets pending=true with the
// current flag untouched. A reviewer decides whether the drop was real.
func (r *Reconciler) flagDroppedPanels(ctx context.Context, tx *store.Tx, td *domain.TestDirectory, ci *domain.ClinicalIndication, asserted map[string]bool, result *Result) error {
	for _, kind := range []domain.LinkKind{domain.LinkPanel, domain.LinkSuperPanel} {
		links, err := tx.CurrentLinksForCI(ctx, kind, ci.ID)
		if err != nil {
			return err
		}
		for _, link := range links {
			panel, err := tx.PanelByID(ctx, link.PanelID)
			if err != nil {
				return err
			}
			if asserted[panel.ExternalID] || link.Pending {
				continue
			}
			note := domain.NoteDroppedFromRelease(td.Release)
			if err := r.assoc.FlagForReview(ctx, tx, link, note, td.ConfigSource); err != nil {
				return err
			}
			result.LinksFlagged++
		}
	}
	return nil
}

func dedupeSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
