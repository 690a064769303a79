package setup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genepanel-curator/internal/domain"
	"github.com/genepanel-curator/internal/store"
	"github.com/genepanel-curator/internal/store/storetest"
)

func seedPanels(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx *store.Tx) error {
		for _, p := range []struct {
			externalID, name, version string
		}{
			{"285", "Telangiectasia", "1.9"},
			{"285", "Telangiectasia", "1.10"},
			{"300", "Telangiectasia syndromes", "2.0"},
			{"301", "Telangiectasia syndromes", "1.0"},
		} {
			normalized, err := domain.NormalizeVersion(p.version)
			if err != nil {
				return err
			}
			if _, _, err := tx.GetOrCreatePanel(ctx, &domain.Panel{
				ExternalID: p.externalID, Name: p.name, Version: p.version,
				NormalizedVersion: normalized, Source: domain.SourcePanelRegistry,
				Type: domain.PanelTypeStandard,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestResolvePanelByNameNewestVersion(t *testing.T) {
	s := storetest.Open(t)
	seedPanels(t, s)

	err := s.WithTx(context.Background(), func(tx *store.Tx) error {
		panel, err := resolvePanel(context.Background(), tx, "", "Telangiectasia")
		require.NoError(t, err)
		assert.Equal(t, "1.10", panel.Version)
		return nil
	})
	require.NoError(t, err)
}

func TestResolvePanelAmbiguousName(t *testing.T) {
	s := storetest.Open(t)
	seedPanels(t, s)

	err := s.WithTx(context.Background(), func(tx *store.Tx) error {
		_, err := resolvePanel(context.Background(), tx, "", "Telangiectasia syndromes")
		require.Error(t, err)
		assert.True(t, domain.IsAmbiguous(err))
		return nil
	})
	require.NoError(t, err)
}

func TestResolvePanelUnknownName(t *testing.T) {
	s := storetest.Open(t)

	err := s.WithTx(context.Background(), func(tx *store.Tx) error {
		_, err := resolvePanel(context.Background(), tx, "", "No such panel")
		assert.True(t, domain.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)
}

func TestResolveCISelectors(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *store.Tx) error {
		ci, _, err := tx.GetOrCreateCI(ctx, "R169", "Telangiectasia", "", "WGS")
		require.NoError(t, err)

		byCode, err := resolveCI(ctx, tx, "R169", "")
		require.NoError(t, err)
		assert.Equal(t, ci.ID, byCode.ID)

		_, err = resolveCI(ctx, tx, "", "")
		require.Error(t, err)

		_, err = resolveCI(ctx, tx, "", "not-a-number")
		require.Error(t, err)
		return nil
	})
	require.NoError(t, err)
}
