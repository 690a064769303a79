package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genepanel-curator/internal/association"
	"github.com/genepanel-curator/internal/domain"
	"github.com/genepanel-curator/internal/store"
	"github.com/genepanel-curator/internal/store/storetest"
)

func newTestImporter(t *testing.T) (*Importer, *store.Store) {
	t.Helper()
	s := storetest.Open(t)
	logger := storetest.Logger()
	im := New(s, association.NewManager(logger), DefaultConfig(), logger)
	return im, s
}

func genePayload(hgnc, symbol string, confidence int) domain.GenePayload {
	return domain.GenePayload{
		HGNCID:            hgnc,
		Symbol:            symbol,
		Confidence:        confidence,
		ModeOfInheritance: "BIALLELIC, autosomal or pseudoautosomal",
		Penetrance:        "Complete",
		Justification:     "PanelApp",
	}
}

func basicPayload() *domain.PanelPayload {
	return &domain.PanelPayload{
		ExternalID: "285",
		Name:       "Hereditary haemorrhagic telangiectasia",
		Version:    "1.15",
		Source:     domain.SourcePanelRegistry,
		Genes: []domain.GenePayload{
			genePayload("HGNC:175", "ACVRL1", 3),
			genePayload("HGNC:3349", "ENG", 3),
			genePayload("HGNC:10001", "RASA1", 2),
		},
	}
}

func TestImportPanelCreatesGreenLinks(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	result, err := im.ImportPanel(ctx, basicPayload())
	require.NoError(t, err)

	assert.True(t, result.PanelCreated)
	assert.Equal(t, 2, result.GenesLinked)
	assert.Equal(t, 1, result.GenesSkipped)

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		links, err := tx.PanelGenesForPanel(ctx, result.PanelID)
		require.NoError(t, err)
		require.Len(t, links, 2)
		for _, link := range links {
			assert.True(t, link.Active)
			assert.False(t, link.Pending)
			assert.Equal(t, "3", link.Confidence)

			n, err := tx.CountPanelGeneHistory(ctx, link.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		}

		// The amber gene never became a gene row either
		_, err = tx.GeneByHGNC(ctx, "HGNC:10001")
		assert.True(t, domain.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)
}

func TestImportPanelIdempotent(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	first, err := im.ImportPanel(ctx, basicPayload())
	require.NoError(t, err)

	second, err := im.ImportPanel(ctx, basicPayload())
	require.NoError(t, err)

	assert.Equal(t, first.PanelID, second.PanelID)
	assert.False(t, second.PanelCreated)
	assert.Zero(t, second.GenesLinked)

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		links, err := tx.PanelGenesForPanel(ctx, first.PanelID)
		require.NoError(t, err)
		for _, link := range links {
			n, err := tx.CountPanelGeneHistory(ctx, link.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, n, "re-import must not write history")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestImportPanelSkipsMissingHGNCID(t *testing.T) {
	im, _ := newTestImporter(t)

	payload := basicPayload()
	payload.Genes = append(payload.Genes, genePayload("", "LOC102724", 3))

	result, err := im.ImportPanel(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 2, result.GenesLinked)
	assert.Equal(t, 2, result.GenesSkipped)
}

func TestImportPanelDuplicateGeneFirstSeenWins(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	payload := basicPayload()
	// Same gene again with lower confidence; must not downgrade the first
	payload.Genes = append(payload.Genes, genePayload("HGNC:175", "ACVRL1", 1))

	result, err := im.ImportPanel(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, 2, result.GenesLinked)
	assert.Zero(t, result.GenesDowngraded)

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		gene, err := tx.GeneByHGNC(ctx, "HGNC:175")
		require.NoError(t, err)
		link, err := tx.PanelGene(ctx, result.PanelID, gene.ID)
		require.NoError(t, err)
		assert.True(t, link.Active)
		assert.Equal(t, "3", link.Confidence)

		n, err := tx.CountPanelGeneHistory(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "the sub-green duplicate must not reach the downgrade path")
		return nil
	})
	require.NoError(t, err)
}

func TestImportPanelOmissionList(t *testing.T) {
	s := storetest.Open(t)
	logger := storetest.Logger()
	cfg := DefaultConfig()
	cfg.OmitHGNCIDs = []string{"HGNC:3349"}
	im := New(s, association.NewManager(logger), cfg, logger)

	result, err := im.ImportPanel(context.Background(), basicPayload())
	require.NoError(t, err)
	assert.Equal(t, 1, result.GenesLinked)
	assert.Equal(t, 2, result.GenesSkipped)
}

func TestImportPanelGeneAddedWithoutVersionBump(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	_, err := im.ImportPanel(ctx, basicPayload())
	require.NoError(t, err)

	payload := basicPayload()
	payload.Genes = append(payload.Genes, genePayload("HGNC:11098", "SMAD4", 3))

	result, err := im.ImportPanel(ctx, payload)
	require.NoError(t, err)
	assert.False(t, result.PanelCreated)
	assert.Equal(t, 1, result.GenesLinked)
	assert.Equal(t, 1, result.LinksFlagged)

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		gene, err := tx.GeneByHGNC(ctx, "HGNC:11098")
		require.NoError(t, err)
		link, err := tx.PanelGene(ctx, result.PanelID, gene.ID)
		require.NoError(t, err)
		assert.True(t, link.Active)
		assert.True(t, link.Pending, "link added to a known version needs confirmation")
		return nil
	})
	require.NoError(t, err)
}

func TestImportPanelConfidenceDowngrade(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	first, err := im.ImportPanel(ctx, basicPayload())
	require.NoError(t, err)

	payload := basicPayload()
	payload.Genes[0].Confidence = 1

	result, err := im.ImportPanel(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, 1, result.GenesDowngraded)

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		gene, err := tx.GeneByHGNC(ctx, "HGNC:175")
		require.NoError(t, err)
		link, err := tx.PanelGene(ctx, first.PanelID, gene.ID)
		require.NoError(t, err)
		assert.False(t, link.Active)
		assert.True(t, link.Pending)

		notes, err := tx.ListPanelGeneHistory(ctx, link.ID)
		require.NoError(t, err)
		require.Len(t, notes, 2)
		assert.Equal(t, domain.NoteConfidenceLowered("3", "1"), notes[len(notes)-1].Note)
		return nil
	})
	require.NoError(t, err)

	// Re-reporting the same downgrade records nothing further
	_, err = im.ImportPanel(ctx, payload)
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		gene, err := tx.GeneByHGNC(ctx, "HGNC:175")
		require.NoError(t, err)
		link, err := tx.PanelGene(ctx, first.PanelID, gene.ID)
		require.NoError(t, err)
		n, err := tx.CountPanelGeneHistory(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		return nil
	})
	require.NoError(t, err)
}

func TestImportPanelJustificationRefresh(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	first, err := im.ImportPanel(ctx, basicPayload())
	require.NoError(t, err)

	payload := basicPayload()
	payload.Genes[0].Justification = "Expert Review Green"

	_, err = im.ImportPanel(ctx, payload)
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		gene, err := tx.GeneByHGNC(ctx, "HGNC:175")
		require.NoError(t, err)
		link, err := tx.PanelGene(ctx, first.PanelID, gene.ID)
		require.NoError(t, err)
		assert.Equal(t, "Expert Review Green", link.Justification)

		notes, err := tx.ListPanelGeneHistory(ctx, link.ID)
		require.NoError(t, err)
		require.Len(t, notes, 2)
		assert.Equal(t, domain.NoteJustificationChanged("PanelApp", "Expert Review Green"),
			notes[len(notes)-1].Note)
		return nil
	})
	require.NoError(t, err)
}

func TestImportPanelNewVersionSupersedesLinks(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	old, err := im.ImportPanel(ctx, basicPayload())
	require.NoError(t, err)

	// An indication points at the old version
	var ciID int64
	err = s.WithTx(ctx, func(tx *store.Tx) error {
		ci, _, err := tx.GetOrCreateCI(ctx, "R169", "Telangiectasia", "", "WGS")
		if err != nil {
			return err
		}
		ciID = ci.ID
		_, err = im.assoc.Activate(ctx, tx, domain.LinkPanel, ci.ID, old.PanelID, "curator")
		return err
	})
	require.NoError(t, err)

	payload := basicPayload()
	payload.Version = "1.16"

	result, err := im.ImportPanel(ctx, payload)
	require.NoError(t, err)
	require.True(t, result.PanelCreated)
	assert.Equal(t, 1, result.LinksFlagged)

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		oldLink, err := tx.CILink(ctx, domain.LinkPanel, ciID, old.PanelID)
		require.NoError(t, err)
		assert.True(t, oldLink.Current, "old link stays current until reviewed")
		assert.True(t, oldLink.Pending)
		assert.Contains(t, oldLink.ReviewReason, "1.16")

		newLink, err := tx.CILink(ctx, domain.LinkPanel, ciID, result.PanelID)
		require.NoError(t, err)
		assert.False(t, newLink.Current)
		assert.True(t, newLink.Pending)
		return nil
	})
	require.NoError(t, err)
}

func TestImportPanelRegions(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	start, end := int64(49033045), int64(51398631)
	payload := basicPayload()
	payload.Regions = []domain.RegionPayload{
		{
			Name:            "22q11.2 recurrent region",
			Chrom:           "22",
			GRCh38Start:     &start,
			GRCh38End:       &end,
			VariantType:     "cnv_loss",
			Confidence:      3,
			RequiredOverlap: 60,
		},
		{
			Name:       "low confidence region",
			Chrom:      "1",
			Confidence: 1,
		},
	}

	result, err := im.ImportPanel(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RegionsLinked)

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		links, err := tx.PanelRegionsForPanel(ctx, result.PanelID)
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.True(t, links[0].Active)
		assert.Equal(t, 60, links[0].RequiredOverlap)
		return nil
	})
	require.NoError(t, err)
}

func TestImportPanelRegionJustificationRefresh(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	payload := basicPayload()
	payload.Regions = []domain.RegionPayload{
		{
			Name:          "22q11.2 recurrent region",
			Chrom:         "22",
			VariantType:   "cnv_loss",
			Confidence:    3,
			Justification: "PanelApp",
		},
	}

	first, err := im.ImportPanel(ctx, payload)
	require.NoError(t, err)

	payload = basicPayload()
	payload.Regions = []domain.RegionPayload{
		{
			Name:          "22q11.2 recurrent region",
			Chrom:         "22",
			VariantType:   "cnv_loss",
			Confidence:    3,
			Justification: "Expert Review Green",
		},
	}

	result, err := im.ImportPanel(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, first.PanelID, result.PanelID)
	assert.Zero(t, result.RegionsLinked)

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		links, err := tx.PanelRegionsForPanel(ctx, first.PanelID)
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "Expert Review Green", links[0].Justification)

		notes, err := tx.ListPanelRegionHistory(ctx, links[0].ID)
		require.NoError(t, err)
		require.Len(t, notes, 2)
		assert.Equal(t, domain.NoteJustificationChanged("PanelApp", "Expert Review Green"),
			notes[len(notes)-1].Note)
		return nil
	})
	require.NoError(t, err)
}

func TestImportPanelBelowGreenRegionNotStored(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	payload := basicPayload()
	payload.Regions = []domain.RegionPayload{
		{Name: "low confidence region", Chrom: "1", VariantType: "cnv_loss", Confidence: 1},
	}

	result, err := im.ImportPanel(ctx, payload)
	require.NoError(t, err)
	assert.Zero(t, result.RegionsLinked)

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.RegionByAttrs(ctx, &domain.Region{
			Name:        "low confidence region",
			Chrom:       "1",
			VariantType: "cnv_loss",
		})
		assert.True(t, domain.IsNotFound(err), "a sub-green region must not leave a row behind")
		return nil
	})
	require.NoError(t, err)
}

func TestImportPanelMalformed(t *testing.T) {
	im, _ := newTestImporter(t)

	payload := basicPayload()
	payload.Version = ""

	_, err := im.ImportPanel(context.Background(), payload)
	require.Error(t, err)
	assert.True(t, domain.IsMalformed(err))
}

func TestImportAllContinuesPastBadPanel(t *testing.T) {
	im, _ := newTestImporter(t)

	bad := basicPayload()
	bad.ExternalID = ""
	good := basicPayload()
	good.ExternalID = "286"

	imported, failed := im.ImportAll(context.Background(), []*domain.PanelPayload{bad, good})
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, failed)
}

func TestImportSuperPanel(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	childA := &domain.ParentPanelRef{ExternalID: "111", Name: "Cardiac arrhythmias", Version: "3.0"}
	childB := &domain.ParentPanelRef{ExternalID: "112", Name: "Cardiomyopathies", Version: "2.4"}

	g1 := genePayload("HGNC:6294", "KCNQ1", 3)
	g1.ParentPanel = childA
	g2 := genePayload("HGNC:7577", "MYH7", 3)
	g2.ParentPanel = childB

	payload := &domain.PanelPayload{
		ExternalID:   "139",
		Name:         "Paediatric or syndromic cardiomyopathy",
		Version:      "1.3",
		Source:       domain.SourcePanelRegistry,
		IsSuperPanel: true,
		Genes:        []domain.GenePayload{g1, g2},
	}

	result, err := im.ImportPanel(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ChildPanels)
	assert.Equal(t, 2, result.GenesLinked)

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		parent, err := tx.PanelByID(ctx, result.PanelID)
		require.NoError(t, err)
		assert.Equal(t, domain.PanelTypeSuper, parent.Type)

		children, err := tx.SuperPanelChildren(ctx, parent.ID)
		require.NoError(t, err)
		require.Len(t, children, 2)

		// Genes hang off the children, never the parent
		parentLinks, err := tx.PanelGenesForPanel(ctx, parent.ID)
		require.NoError(t, err)
		assert.Empty(t, parentLinks)
		return nil
	})
	require.NoError(t, err)
}

func TestImportSuperPanelEntryWithoutParent(t *testing.T) {
	im, _ := newTestImporter(t)

	g := genePayload("HGNC:6294", "KCNQ1", 3)
	payload := &domain.PanelPayload{
		ExternalID:   "139",
		Name:         "Paediatric or syndromic cardiomyopathy",
		Version:      "1.3",
		Source:       domain.SourcePanelRegistry,
		IsSuperPanel: true,
		Genes:        []domain.GenePayload{g},
	}

	_, err := im.ImportPanel(context.Background(), payload)
	require.Error(t, err)
	assert.True(t, domain.IsMalformed(err))
}
