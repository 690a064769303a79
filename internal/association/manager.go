// Package association owns the clinical-indication/panel link state machine.
// Every transition that changes the live flag or sets the review flag writes
// exactly one history row; no-op calls write none.
package association

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/genepanel-curator/internal/domain"
	"github.com/genepanel-curator/internal/store"
)

// Manager drives CI association transitions inside a caller-owned
// transaction.
type Manager struct {
	log *logrus.Logger
}

// NewManager creates an association lifecycle manager.
func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{log: logger}
}

// Activate makes the (CI, panel) association live. A missing row is created
// live; an already-live row is left untouched with no history write.
func (m *Manager) Activate(ctx context.Context, tx *store.Tx, kind domain.LinkKind, ciID, panelID int64, user string) (*domain.CILink, error) {
	link, created, err := tx.GetOrCreateCILink(ctx, kind, ciID, panelID, store.CILinkOpts{Current: true})
	if err != nil {
		return nil, err
	}

	if created {
		if err := tx.AddCILinkHistory(ctx, kind, link.ID, domain.NoteCreated(user), user); err != nil {
			return nil, err
		}
		m.log.WithFields(logrus.Fields{
			"kind":     kind,
			"ci_id":    ciID,
			"panel_id": panelID,
			"user":     user,
		}).Info("Association created active")
		return link, nil
	}

	if link.Current {
		// Idempotent: already live, nothing to record
		return link, nil
	}

	if err := tx.UpdateCILinkState(ctx, kind, link.ID, true, link.Pending, link.ReviewReason); err != nil {
		return nil, err
	}
	if err := tx.AddCILinkHistory(ctx, kind, link.ID, domain.NoteActivated(user), user); err != nil {
		return nil, err
	}
	link.Current = true

	m.log.WithFields(logrus.Fields{
		"kind":    kind,
		"link_id": link.ID,
		"user":    user,
	}).Info("Association activated")
	return link, nil
}

// Deactivate retires the (CI, panel) association. Absent or already
// inactive rows are left untouched with no history write; Deactivate never
// creates a row.
func (m *Manager) Deactivate(ctx context.Context, tx *store.Tx, kind domain.LinkKind, ciID, panelID int64, user string) error {
	link, err := tx.CILink(ctx, kind, ciID, panelID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil
		}
		return err
	}
	return m.DeactivateLink(ctx, tx, link, user)
}

// DeactivateLink retires an already-fetched association row.
func (m *Manager) DeactivateLink(ctx context.Context, tx *store.Tx, link *domain.CILink, user string) error {
	return m.DeactivateLinkWithNote(ctx, tx, link, domain.NoteDeactivated(user), user)
}

// DeactivateLinkWithNote retires an association recording a caller-supplied
// history note, used when the retirement has a richer cause than a manual
// edit (e.g. an indication renamed by a newer release).
func (m *Manager) DeactivateLinkWithNote(ctx context.Context, tx *store.Tx, link *domain.CILink, note, user string) error {
	if !link.Current {
		return nil
	}

	if err := tx.UpdateCILinkState(ctx, link.Kind, link.ID, false, link.Pending, link.ReviewReason); err != nil {
		return err
	}
	if err := tx.AddCILinkHistory(ctx, link.Kind, link.ID, note, user); err != nil {
		return err
	}
	link.Current = false

	m.log.WithFields(logrus.Fields{
		"kind":    link.Kind,
		"link_id": link.ID,
		"user":    user,
	}).Info("Association deactivated")
	return nil
}

// FlagForReview marks an association pending with the caller's reason. The
// live flag is never touched; a reviewer decides what happens next. Flagging
// an already-pending link is a no-op so repeated reconciliation passes do
// not pile up history.
func (m *Manager) FlagForReview(ctx context.Context, tx *store.Tx, link *domain.CILink, reason, user string) error {
	if link.Pending {
		return nil
	}

	if err := tx.UpdateCILinkState(ctx, link.Kind, link.ID, link.Current, true, reason); err != nil {
		return err
	}
	if err := tx.AddCILinkHistory(ctx, link.Kind, link.ID, domain.NoteFlaggedForReview(reason), user); err != nil {
		return err
	}
	link.Pending = true
	link.ReviewReason = reason

	m.log.WithFields(logrus.Fields{
		"kind":    link.Kind,
		"link_id": link.ID,
		"reason":  reason,
	}).Info("Association flagged for review")
	return nil
}

// ProvisionalLink creates (or fetches) an association between a CI and a
// panel version without asserting it is live. New rows are created pending
// so they land in a reviewer's queue; existing rows are returned untouched
// with no history write.
func (m *Manager) ProvisionalLink(ctx context.Context, tx *store.Tx, kind domain.LinkKind, ciID, panelID int64, source string) (*domain.CILink, error) {
	link, created, err := tx.GetOrCreateCILink(ctx, kind, ciID, panelID, store.CILinkOpts{
		Current:      false,
		Pending:      true,
		ReviewReason: domain.NoteProvisionalLink(source),
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return link, nil
	}

	if err := tx.AddCILinkHistory(ctx, kind, link.ID, domain.NoteProvisionalLink(source), source); err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"kind":     kind,
		"ci_id":    ciID,
		"panel_id": panelID,
		"source":   source,
	}).Info("Association provisionally linked")
	return link, nil
}
