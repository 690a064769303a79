package domain

import (
	"fmt"
)

// History note templates. Every history row's note text comes from this
// fixed vocabulary so downstream tooling can grep provenance reliably.

// SourcePanelRegistry is the acting user recorded for automated panel
// registry imports.
const SourcePanelRegistry = "PanelApp"

// NoteCreated records creation of an association or link.
func NoteCreated(user string) string {
	return fmt.Sprintf("created by %s", user)
}

// NoteActivated records an inactive association flipping to current.
func NoteActivated(user string) string {
	return fmt.Sprintf("set to active by %s", user)
}

// NoteDeactivated records a current association flipping to inactive.
func NoteDeactivated(user string) string {
	return fmt.Sprintf("set to inactive by %s", user)
}

// NoteFlaggedForReview records a pending flag with the caller's reason.
func NoteFlaggedForReview(reason string) string {
	return fmt.Sprintf("flagged for manual review: %s", reason)
}

// NoteProvisionalLink records a reviewer-seeding link that does not assert
// the association is correct.
func NoteProvisionalLink(source string) string {
	return fmt.Sprintf("provisionally linked by %s, awaiting review", source)
}

// NoteConfidenceLowered records the downgrade-detection path: an active link
// deactivated because the registry lowered the gene's confidence.
func NoteConfidenceLowered(oldLevel, newLevel string) string {
	return fmt.Sprintf("confidence lowered from %s to %s; link deactivated pending review", oldLevel, newLevel)
}

// NoteGeneAddedToExistingPanel records a gene appearing on an already-known
// panel version outside of a version bump.
func NoteGeneAddedToExistingPanel(source string) string {
	return fmt.Sprintf("gene added to existing panel version by %s; flagged for review", source)
}

// NoteJustificationChanged records a metadata refresh of a link's
// justification.
func NoteJustificationChanged(oldJust, newJust string) string {
	return fmt.Sprintf("justification changed from %q to %q", oldJust, newJust)
}

// NoteNewPanelVersion is the review reason used when a newly imported panel
// version supersedes the version a current association points at.
func NoteNewPanelVersion(externalID, oldVersion, newVersion string) string {
	return fmt.Sprintf("panel %s has a newer version (%s -> %s)", externalID, oldVersion, newVersion)
}

// NoteTDFieldsChanged records a test directory release reasserting an
// association with changed release metadata.
func NoteTDFieldsChanged(oldVersion, newVersion, oldSource, newSource string) string {
	return fmt.Sprintf("td_version changed from %q to %q; config_source changed from %q to %q",
		oldVersion, newVersion, oldSource, newSource)
}

// NoteCISuperseded records deactivation of an association whose clinical
// indication was renamed by a newer test directory release.
func NoteCISuperseded(rCode, oldName, newName, release string) string {
	return fmt.Sprintf("clinical indication %s renamed from %q to %q by release %s; association superseded",
		rCode, oldName, newName, release)
}

// NoteDroppedFromRelease is the review reason used when a current
// association's panel is absent from a release's panel set for that CI.
func NoteDroppedFromRelease(release string) string {
	return fmt.Sprintf("panel absent from test directory release %s", release)
}

// NoteSymbolChanged records the symbol sync pass rewriting a gene's display
// symbol.
func NoteSymbolChanged(oldSymbol, newSymbol string) string {
	return fmt.Sprintf("approved symbol changed from %q to %q", oldSymbol, newSymbol)
}

// NoteSymbolListsChanged records the symbol sync pass rewriting a gene's
// alias or previous-symbol lists while the approved symbol stood.
func NoteSymbolListsChanged(symbol string) string {
	return fmt.Sprintf("alias or previous symbols updated for %s", symbol)
}
