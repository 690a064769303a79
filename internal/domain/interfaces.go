package domain

import (
	"context"
)

// PanelSource fetches normalized panel payloads from the external registry.
// The fetch happens before any import transaction opens.
type PanelSource interface {
	FetchPanel(ctx context.Context, externalID, version string) (*PanelPayload, error)
	FetchAllCurrentPanels(ctx context.Context) ([]*PanelPayload, error)
}
