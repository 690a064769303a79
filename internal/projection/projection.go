// Package projection exposes the read-only views report generators consume.
// Nothing here writes rows or history.
package projection

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/genepanel-curator/internal/domain"
	"github.com/genepanel-curator/internal/store"
)

// Service runs projection queries against the store.
type Service struct {
	store *store.Store
	log   *logrus.Logger
}

// New creates a projection service.
func New(s *store.Store, logger *logrus.Logger) *Service {
	return &Service{store: s, log: logger}
}

// GenePanels returns the converged genepanels view: for every current CI
// association (superpanels expanded through their children), the active
// confirmed genes of the panel.
func (s *Service) GenePanels(ctx context.Context) ([]*store.GenePanelRow, error) {
	var result []*store.GenePanelRow
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		direct, err := tx.GenePanelRows(ctx)
		if err != nil {
			return err
		}
		expanded, err := tx.SuperPanelGeneRows(ctx)
		if err != nil {
			return err
		}
		result = append(direct, expanded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gene panels projection: %w", err)
	}
	return result, nil
}

// GenesForPanel lists the genes of the newest stored version of a panel
// external id.
func (s *Service) GenesForPanel(ctx context.Context, externalID string) ([]*store.PanelGeneRow, error) {
	var result []*store.PanelGeneRow
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		panels, err := tx.PanelsByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		if len(panels) == 0 {
			return fmt.Errorf("panel %s: %w", externalID, domain.ErrNotFound)
		}
		result, err = tx.GenesForPanel(ctx, panels[0].ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PendingReview gathers everything awaiting human adjudication: flagged CI
// associations of both kinds and flagged panel/gene links.
type PendingReview struct {
	Associations []*store.ReviewItem
	PanelGenes   []*store.PendingGeneLink
}

// Pending returns the full review queue.
func (s *Service) Pending(ctx context.Context) (*PendingReview, error) {
	review := &PendingReview{}
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		if review.Associations, err = tx.PendingAssociations(ctx); err != nil {
			return err
		}
		review.PanelGenes, err = tx.PendingPanelGenes(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pending review projection: %w", err)
	}
	return review, nil
}

// CurrentPanelsForCI lists the panels currently asserted for one clinical
// indication, both kinds.
func (s *Service) CurrentPanelsForCI(ctx context.Context, ciID int64) ([]*domain.Panel, error) {
	var result []*domain.Panel
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, kind := range []domain.LinkKind{domain.LinkPanel, domain.LinkSuperPanel} {
			links, err := tx.CurrentLinksForCI(ctx, kind, ciID)
			if err != nil {
				return err
			}
			for _, link := range links {
				panel, err := tx.PanelByID(ctx, link.PanelID)
				if err != nil {
					return err
				}
				result = append(result, panel)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("current panels for ci %d: %w", ciID, err)
	}
	return result, nil
}
