package importer

import (
	"context"
	"fmt"

	"github.com/genepanel-curator/internal/domain"
	"github.com/genepanel-curator/internal/store"
)

// importSuperPanel splits a flattened superpanel payload back into its child
// panels, imports each child as a standard panel, creates the superpanel row
// itself, and records the parent-child links. The superpanel row carries no
// gene or region links of its own; membership is always resolved through the
// children.
func (im *Importer) importSuperPanel(ctx context.Context, tx *store.Tx, payload *domain.PanelPayload, result *Result) error {
	children, order, err := splitChildren(payload)
	if err != nil {
		return err
	}

	normalized, err := domain.NormalizeVersion(payload.Version)
	if err != nil {
		return err
	}

	parent, created, err := tx.GetOrCreatePanel(ctx, &domain.Panel{
		ExternalID:        payload.ExternalID,
		Name:              payload.Name,
		Version:           payload.Version,
		NormalizedVersion: normalized,
		Source:            payload.Source,
		Type:              domain.PanelTypeSuper,
	})
	if err != nil {
		return err
	}
	result.PanelID = parent.ID
	result.PanelCreated = created

	if created {
		if err := im.supersedeOlderVersions(ctx, tx, parent, result); err != nil {
			return err
		}
	}

	for _, key := range order {
		child := children[key]
		childPanel, err := im.importOnePanel(ctx, tx, child, domain.PanelTypeStandard, result)
		if err != nil {
			return err
		}
		if err := tx.LinkSuperPanelChild(ctx, parent.ID, childPanel.ID); err != nil {
			return err
		}
		result.ChildPanels++
	}
	return nil
}

// splitChildren regroups the flattened entry lists by their ParentPanel ref,
// preserving first-appearance order so import is deterministic. An entry with
// no parent ref cannot be attributed to any child and fails the whole
// superpanel.
func splitChildren(payload *domain.PanelPayload) (map[string]*domain.PanelPayload, []string, error) {
	children := make(map[string]*domain.PanelPayload)
	var order []string

	childFor := func(ref *domain.ParentPanelRef) (*domain.PanelPayload, error) {
		if ref == nil || ref.ExternalID == "" {
			return nil, fmt.Errorf("%w: superpanel %s entry has no parent panel",
				domain.ErrMalformedPayload, payload.ExternalID)
		}
		child, ok := children[ref.ExternalID]
		if !ok {
			child = &domain.PanelPayload{
				ExternalID: ref.ExternalID,
				Name:       ref.Name,
				Version:    ref.Version,
				Source:     payload.Source,
			}
			if err := child.Validate(); err != nil {
				return nil, err
			}
			children[ref.ExternalID] = child
			order = append(order, ref.ExternalID)
		}
		return child, nil
	}

	for i := range payload.Genes {
		child, err := childFor(payload.Genes[i].ParentPanel)
		if err != nil {
			return nil, nil, err
		}
		child.Genes = append(child.Genes, payload.Genes[i])
	}
	for i := range payload.Regions {
		child, err := childFor(payload.Regions[i].ParentPanel)
		if err != nil {
			return nil, nil, err
		}
		child.Regions = append(child.Regions, payload.Regions[i])
	}
	return children, order, nil
}
