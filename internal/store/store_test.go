package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genepanel-curator/internal/domain"
	"github.com/genepanel-curator/internal/store"
	"github.com/genepanel-curator/internal/store/storetest"
)

func inTx(t *testing.T, s *store.Store, fn func(tx *store.Tx) error) {
	t.Helper()
	require.NoError(t, s.WithTx(context.Background(), fn))
}

func testPanel(version string) *domain.Panel {
	normalized, _ := domain.NormalizeVersion(version)
	return &domain.Panel{
		ExternalID:        "921",
		Name:              "Severe microcephaly",
		Version:           version,
		NormalizedVersion: normalized,
		Source:            domain.SourcePanelRegistry,
		Type:              domain.PanelTypeStandard,
	}
}

func TestGetOrCreateGene(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	inTx(t, s, func(tx *store.Tx) error {
		gene, created, err := tx.GetOrCreateGene(ctx, "HGNC:487", "ASPM", []string{"MCPH5"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "ASPM", gene.Symbol)
		assert.Equal(t, []string{"MCPH5"}, gene.AliasSymbols)

		// Display fields only set on create; a later call with a different
		// symbol must not overwrite
		again, created, err := tx.GetOrCreateGene(ctx, "HGNC:487", "RENAMED", nil)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, gene.ID, again.ID)
		assert.Equal(t, "ASPM", again.Symbol)
		return nil
	})
}

func TestGeneByHGNCNotFound(t *testing.T) {
	s := storetest.Open(t)
	inTx(t, s, func(tx *store.Tx) error {
		_, err := tx.GeneByHGNC(context.Background(), "HGNC:0")
		assert.True(t, domain.IsNotFound(err))
		return nil
	})
}

func TestGetOrCreatePanelIdentityTuple(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	inTx(t, s, func(tx *store.Tx) error {
		p1, created, err := tx.GetOrCreatePanel(ctx, testPanel("1.9"))
		require.NoError(t, err)
		assert.True(t, created)

		same, created, err := tx.GetOrCreatePanel(ctx, testPanel("1.9"))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, p1.ID, same.ID)

		// A version bump is a distinct panel row
		p2, created, err := tx.GetOrCreatePanel(ctx, testPanel("1.10"))
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, p1.ID, p2.ID)
		return nil
	})
}

func TestPanelsByExternalIDOrdersNewestFirst(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	inTx(t, s, func(tx *store.Tx) error {
		for _, v := range []string{"1.9", "1.10", "1.2"} {
			if _, _, err := tx.GetOrCreatePanel(ctx, testPanel(v)); err != nil {
				return err
			}
		}

		panels, err := tx.PanelsByExternalID(ctx, "921")
		require.NoError(t, err)
		require.Len(t, panels, 3)
		// Normalized ordering: 1.10 > 1.9 > 1.2
		assert.Equal(t, "1.10", panels[0].Version)
		assert.Equal(t, "1.9", panels[1].Version)
		assert.Equal(t, "1.2", panels[2].Version)
		return nil
	})
}

func TestVocabularyGetOrCreate(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	inTx(t, s, func(tx *store.Tx) error {
		id1, err := tx.GetOrCreateConfidence(ctx, "3")
		require.NoError(t, err)
		id2, err := tx.GetOrCreateConfidence(ctx, "3")
		require.NoError(t, err)
		assert.Equal(t, id1, id2)

		// Empty value collapses to the unknown sentinel
		unknown1, err := tx.GetOrCreateMOI(ctx, "")
		require.NoError(t, err)
		unknown2, err := tx.GetOrCreateMOI(ctx, store.VocabUnknown)
		require.NoError(t, err)
		assert.Equal(t, unknown1, unknown2)
		return nil
	})
}

func TestGetOrCreateRegionCoordinateMatch(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	start, end := int64(100), int64(200)
	otherEnd := int64(300)

	inTx(t, s, func(tx *store.Tx) error {
		r1, created, err := tx.GetOrCreateRegion(ctx, &domain.Region{
			Name: "16p13.11 region", Chrom: "16",
			GRCh38Start: &start, GRCh38End: &end, VariantType: "cnv_loss",
		})
		require.NoError(t, err)
		assert.True(t, created)

		same, created, err := tx.GetOrCreateRegion(ctx, &domain.Region{
			Name: "16p13.11 region", Chrom: "16",
			GRCh38Start: &start, GRCh38End: &end, VariantType: "cnv_loss",
		})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, r1.ID, same.ID)

		// Same name, different coordinates: a distinct region
		r2, created, err := tx.GetOrCreateRegion(ctx, &domain.Region{
			Name: "16p13.11 region", Chrom: "16",
			GRCh38Start: &start, GRCh38End: &otherEnd, VariantType: "cnv_loss",
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, r1.ID, r2.ID)

		// Nil coordinates only match nil
		r3, created, err := tx.GetOrCreateRegion(ctx, &domain.Region{
			Name: "16p13.11 region", Chrom: "16", VariantType: "cnv_loss",
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, r1.ID, r3.ID)
		return nil
	})
}

func TestResolveCIByRCode(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	inTx(t, s, func(tx *store.Tx) error {
		_, err := tx.ResolveCIByRCode(ctx, "R58")
		assert.True(t, domain.IsNotFound(err))

		ci, _, err := tx.GetOrCreateCI(ctx, "R58", "Adult onset dystonia", "", "WGS")
		require.NoError(t, err)

		got, err := tx.ResolveCIByRCode(ctx, "R58")
		require.NoError(t, err)
		assert.Equal(t, ci.ID, got.ID)

		// A second CI under the same code makes the selector ambiguous
		_, _, err = tx.GetOrCreateCI(ctx, "R58", "Adult onset dystonia and chorea", "", "WGS")
		require.NoError(t, err)

		_, err = tx.ResolveCIByRCode(ctx, "R58")
		require.Error(t, err)
		assert.True(t, domain.IsAmbiguous(err))
		assert.Contains(t, err.Error(), "database id")
		return nil
	})
}

func TestHistoryAppendOnlyOrdering(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	inTx(t, s, func(tx *store.Tx) error {
		gene, _, err := tx.GetOrCreateGene(ctx, "HGNC:1100", "BRCA1", nil)
		require.NoError(t, err)

		notes := []string{"first", "second", "third"}
		for _, n := range notes {
			require.NoError(t, tx.AddGeneHistory(ctx, gene.ID, n, "curator"))
		}

		entries, err := tx.ListGeneHistory(ctx, gene.ID)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		for i, e := range entries {
			assert.Equal(t, notes[i], e.Note)
			assert.Equal(t, "curator", e.User)
		}
		return nil
	})
}

func TestLinkReleaseToCILinkIdempotent(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	inTx(t, s, func(tx *store.Tx) error {
		ci, _, err := tx.GetOrCreateCI(ctx, "R14", "Acutely unwell children", "", "WGS")
		require.NoError(t, err)
		panel, _, err := tx.GetOrCreatePanel(ctx, testPanel("1.0"))
		require.NoError(t, err)
		link, _, err := tx.GetOrCreateCILink(ctx, domain.LinkPanel, ci.ID, panel.ID, store.CILinkOpts{Current: true})
		require.NoError(t, err)

		rel, created, err := tx.GetOrCreateTDRelease(ctx, "5.2", "rare-disease-5.2.xlsx", "rare_disease", "2025-06-01")
		require.NoError(t, err)
		assert.True(t, created)

		added, err := tx.LinkReleaseToCILink(ctx, domain.LinkPanel, link.ID, rel.ID)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = tx.LinkReleaseToCILink(ctx, domain.LinkPanel, link.ID, rel.ID)
		require.NoError(t, err)
		assert.False(t, added)

		releases, err := tx.ReleasesForCILink(ctx, domain.LinkPanel, link.ID)
		require.NoError(t, err)
		require.Len(t, releases, 1)
		assert.Equal(t, "5.2", releases[0].Release)
		return nil
	})
}

func TestGenePanelRowsExcludePendingAndInactive(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	inTx(t, s, func(tx *store.Tx) error {
		ci, _, err := tx.GetOrCreateCI(ctx, "R87", "Cerebellar anomalies", "", "WGS")
		require.NoError(t, err)
		panel, _, err := tx.GetOrCreatePanel(ctx, testPanel("3.1"))
		require.NoError(t, err)
		_, _, err = tx.GetOrCreateCILink(ctx, domain.LinkPanel, ci.ID, panel.ID, store.CILinkOpts{Current: true})
		require.NoError(t, err)

		active, _, err := tx.GetOrCreateGene(ctx, "HGNC:6893", "OPHN1", nil)
		require.NoError(t, err)
		pending, _, err := tx.GetOrCreateGene(ctx, "HGNC:2186", "CC2D2A", nil)
		require.NoError(t, err)
		retired, _, err := tx.GetOrCreateGene(ctx, "HGNC:892", "ARX", nil)
		require.NoError(t, err)

		attrs := store.PanelGeneAttrs{Confidence: "3", Active: true}
		_, _, err = tx.GetOrCreatePanelGene(ctx, panel.ID, active.ID, attrs)
		require.NoError(t, err)

		attrs.Pending = true
		_, _, err = tx.GetOrCreatePanelGene(ctx, panel.ID, pending.ID, attrs)
		require.NoError(t, err)

		attrs = store.PanelGeneAttrs{Confidence: "3", Active: false}
		_, _, err = tx.GetOrCreatePanelGene(ctx, panel.ID, retired.ID, attrs)
		require.NoError(t, err)

		rows, err := tx.GenePanelRows(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "OPHN1", rows[0].Symbol)
		assert.Equal(t, "R87", rows[0].RCode)
		return nil
	})
}

func TestPendingAssociationsCoversBothKinds(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	inTx(t, s, func(tx *store.Tx) error {
		ci, _, err := tx.GetOrCreateCI(ctx, "R128", "Cystic renal disease", "", "WGS")
		require.NoError(t, err)
		panel, _, err := tx.GetOrCreatePanel(ctx, testPanel("2.0"))
		require.NoError(t, err)

		_, _, err = tx.GetOrCreateCILink(ctx, domain.LinkPanel, ci.ID, panel.ID,
			store.CILinkOpts{Current: true, Pending: true, ReviewReason: "new version"})
		require.NoError(t, err)
		_, _, err = tx.GetOrCreateCILink(ctx, domain.LinkSuperPanel, ci.ID, panel.ID,
			store.CILinkOpts{Pending: true, ReviewReason: "provisional"})
		require.NoError(t, err)

		items, err := tx.PendingAssociations(ctx)
		require.NoError(t, err)
		assert.Len(t, items, 2)
		return nil
	})
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *store.Tx) error {
		if _, _, err := tx.GetOrCreateGene(ctx, "HGNC:404", "GONE", nil); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	inTx(t, s, func(tx *store.Tx) error {
		_, err := tx.GeneByHGNC(ctx, "HGNC:404")
		assert.True(t, domain.IsNotFound(err))
		return nil
	})
}
