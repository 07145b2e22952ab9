package dataset

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"invgen/internal/mmcif"
	"invgen/internal/source"
	"invgen/pkg/types"
)

const modelA = `data_a
_database_2.database_id      PDB
_database_2.database_code    1AAA
loop_
_entity.id
_entity.type
_entity.src_method
_entity.pdbx_description
1 polymer     man 'Lysozyme C'
2 non-polymer syn 'Adenosine triphosphate'
3 water       nat water
loop_
_entity_poly.entity_id
_entity_poly.type
_entity_poly.pdbx_seq_one_letter_code
_entity_poly.pdbx_seq_one_letter_code_can
1 polypeptide(L) MKVFGRCELAA MKVFGRCELAA
loop_
_pdbx_entity_nonpoly.entity_id
_pdbx_entity_nonpoly.comp_id
2 ATP
3 HOH
loop_
_entity_src_gen.entity_id
_entity_src_gen.pdbx_gene_src_scientific_name
_entity_src_gen.pdbx_gene_src_ncbi_taxonomy_id
1 'Gallus gallus' 9031
_exptl.method 'X-RAY DIFFRACTION'
_diffrn_source.pdbx_synchrotron_site 'Diamond'
loop_
_struct_ref.entity_id
_struct_ref.db_name
_struct_ref.db_code
_struct_ref.pdbx_db_accession
1 UNP LYSC_CHICK P00698
`

// modelB carries the same polymer sequence and ATP as modelA but no
// water, so it lands in a different non-polymer description group.
const modelB = `data_b
_database_2.database_id      PDB
_database_2.database_code    1BBB
loop_
_entity.id
_entity.type
_entity.src_method
1 polymer     man
2 non-polymer syn
loop_
_entity_poly.entity_id
_entity_poly.type
_entity_poly.pdbx_seq_one_letter_code
_entity_poly.pdbx_seq_one_letter_code_can
1 polypeptide(L) MKVFGRCELAA MKVFGRCELAA
loop_
_pdbx_entity_nonpoly.entity_id
_pdbx_entity_nonpoly.comp_id
2 ATP
_diffrn_source.pdbx_synchrotron_site 'Diamond'
`

func testSet(t *testing.T, texts map[string]string, order []string) *source.Set {
	t.Helper()
	named := make(map[string]*mmcif.Block, len(texts))
	for name, text := range texts {
		block, err := mmcif.Parse(strings.NewReader(text))
		require.NoError(t, err)
		named[name] = block
	}
	return source.NewSet(zap.NewNop(), named, order)
}

func testBuilder(t *testing.T, texts map[string]string, order []string) (*Builder, *Surface) {
	t.Helper()
	surface, err := NewSurface(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { surface.Close() })
	set := testSet(t, texts, order)
	return NewBuilder(set, surface, 0, zap.NewNop()), surface
}

func TestBuildAssignsOrdinalsByContent(t *testing.T) {
	b, surface := testBuilder(t,
		map[string]string{"a.cif": modelA, "b.cif": modelB},
		[]string{"a.cif", "b.cif"})
	require.NoError(t, b.Build())

	rows, err := surface.QueryStrings(
		"SELECT source_id, entity_id, kind, ordinal, comp_id FROM denormalized_data ORDER BY rowid")
	require.NoError(t, err)
	require.Len(t, rows, 5)

	// Same sequence in both sources shares one polymer ordinal.
	assert.Equal(t, []string{"1AAA", "1", "polymer", "1", ""}, rows[0])
	assert.Equal(t, []string{"1BBB", "1", "polymer", "1", ""}, rows[3])
	// ATP shares one non-polymer ordinal across sources, HOH gets its own.
	assert.Equal(t, []string{"1AAA", "2", "non-polymer", "1", "ATP"}, rows[1])
	assert.Equal(t, []string{"1AAA", "3", "water", "2", "HOH"}, rows[2])
	assert.Equal(t, []string{"1BBB", "2", "non-polymer", "1", "ATP"}, rows[4])
}

func TestBuildResolvesTaxonomyByMethod(t *testing.T) {
	b, surface := testBuilder(t,
		map[string]string{"a.cif": modelA}, []string{"a.cif"})
	require.NoError(t, b.Build())

	rows, err := surface.QueryStrings(
		"SELECT organism_scientific, ncbi_taxonomy_id FROM denormalized_data WHERE entity_id = '1'")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Gallus gallus", "9031"}, rows[0])
}

func TestBuildRequiresCoreCategories(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{
			name: "missing entity",
			text: "data_x\n_database_2.database_code 1XXX\n",
		},
		{
			name: "missing database",
			text: "data_x\n_entity.id 1\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := testBuilder(t,
				map[string]string{"x.cif": tt.text}, []string{"x.cif"})
			err := b.Build()
			require.ErrorIs(t, err, types.ErrMissingCategory)
		})
	}
}

func TestBuildSourceIDFallsBackToFileName(t *testing.T) {
	text := "data_x\n_database_2.database_code ?\n_entity.id 1\n_entity.type polymer\n"
	b, surface := testBuilder(t,
		map[string]string{"model-x.cif": text}, []string{"model-x.cif"})
	require.NoError(t, b.Build())

	rows, err := surface.QueryStrings("SELECT source_id FROM denormalized_data")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "MODEL-X", rows[0][0])
}

func TestSourceIDFallbackWarnsOncePerSource(t *testing.T) {
	// The enrichment passes resolve the source id again after Build;
	// the cached fallback keeps the warning to one entry.
	text := "data_x\n_database_2.database_code ?\n_entity.id 1\n_entity.type polymer\n" +
		"_exptl.method 'X-RAY DIFFRACTION'\n_diffrn_source.pdbx_synchrotron_site Diamond\n"
	core, logs := observer.New(zap.WarnLevel)
	surface, err := NewSurface(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { surface.Close() })
	set := testSet(t, map[string]string{"model-x.cif": text}, []string{"model-x.cif"})
	b := NewBuilder(set, surface, 0, zap.New(core))
	require.NoError(t, b.Build())
	require.NoError(t, b.Enrich("I-1234"))

	warnings := logs.FilterMessage("source has no database code, using file name")
	assert.Equal(t, 1, warnings.Len())
}

func TestBuildBatchesLargeSources(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("data_x\n_database_2.database_code 1XYZ\nloop_\n_entity.id\n_entity.type\n")
	for i := 1; i <= 7; i++ {
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString(" polymer\n")
	}
	surface, err := NewSurface(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { surface.Close() })
	set := testSet(t, map[string]string{"x.cif": sb.String()}, []string{"x.cif"})
	b := NewBuilder(set, surface, 2, zap.NewNop())
	require.NoError(t, b.Build())

	rows, err := surface.QueryStrings("SELECT COUNT(*) FROM denormalized_data")
	require.NoError(t, err)
	assert.Equal(t, "7", rows[0][0])
}

func TestEnrichAssignsGroupsAndSamples(t *testing.T) {
	b, surface := testBuilder(t,
		map[string]string{"a.cif": modelA, "b.cif": modelB},
		[]string{"a.cif", "b.cif"})
	require.NoError(t, b.Build())
	require.NoError(t, b.Enrich("I-1234"))

	rows, err := surface.QueryStrings(
		"SELECT DISTINCT source_id, poly_group_id, nonpoly_group_id, sample_id FROM denormalized_data ORDER BY source_id")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Identical polymer composition shares a poly group; the differing
	// non-polymer composition splits the nonpoly groups, so samples
	// differ too.
	assert.Equal(t, []string{"1AAA", "1", "1", "1"}, rows[0])
	assert.Equal(t, []string{"1BBB", "1", "2", "2"}, rows[1])
}

func TestEnrichAppliesExperimentAndSynchrotron(t *testing.T) {
	b, surface := testBuilder(t,
		map[string]string{"a.cif": modelA, "b.cif": modelB},
		[]string{"a.cif", "b.cif"})
	require.NoError(t, b.Build())
	require.NoError(t, b.Enrich("I-1234"))

	rows, err := surface.QueryStrings(
		"SELECT DISTINCT source_id, exptl_method, synchrotron_site, campaign_id, series_id FROM denormalized_data ORDER BY source_id")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Both sources name the same site, so they share one campaign and
	// the series mirrors it. Only modelA declares a method.
	assert.Equal(t, []string{"1AAA", "X-RAY DIFFRACTION", "Diamond", "1", "1"}, rows[0])
	assert.Equal(t, []string{"1BBB", "", "Diamond", "1", "1"}, rows[1])
}

func TestEnrichAppliesStructRefsToPolymersOnly(t *testing.T) {
	b, surface := testBuilder(t,
		map[string]string{"a.cif": modelA}, []string{"a.cif"})
	require.NoError(t, b.Build())
	require.NoError(t, b.Enrich("I-1234"))

	rows, err := surface.QueryStrings(
		"SELECT entity_id, kind, db_name, db_code, db_accession FROM denormalized_data ORDER BY rowid")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1", "polymer", "UNP", "LYSC_CHICK", "P00698"}, rows[0])
	assert.Equal(t, []string{"2", "non-polymer", "", "", ""}, rows[1])
}

func TestEnrichStampsInvestigationID(t *testing.T) {
	b, surface := testBuilder(t,
		map[string]string{"a.cif": modelA}, []string{"a.cif"})
	require.NoError(t, b.Build())
	require.NoError(t, b.Enrich("I-f00d"))

	rows, err := surface.QueryStrings(
		"SELECT DISTINCT investigation_id FROM denormalized_data")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "I-f00d", rows[0][0])
}
