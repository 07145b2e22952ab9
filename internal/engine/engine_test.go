package engine

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"invgen/internal/dataset"
	"invgen/internal/mmcif"
	"invgen/internal/source"
	"invgen/internal/store"
	"invgen/pkg/types"
)

func testEngine(t *testing.T) (*Engine, *store.Store) {
	return testEngineWithSources(t, nil)
}

func testEngineWithSources(t *testing.T, docs map[string]string) (*Engine, *store.Store) {
	t.Helper()
	surface, err := dataset.NewSurface(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { surface.Close() })

	named := make(map[string]*mmcif.Block, len(docs))
	var order []string
	for name, doc := range docs {
		block, err := mmcif.Parse(strings.NewReader(doc))
		require.NoError(t, err)
		named[name] = block
		order = append(order, name)
	}
	sort.Strings(order)

	st := store.New()
	return New(st, source.NewSet(zap.NewNop(), named, order), surface, zap.NewNop()), st
}

func item(t *testing.T, st *store.Store, category, name string) []string {
	t.Helper()
	values, ok := st.Item(category, name)
	require.True(t, ok, "%s.%s missing", category, name)
	return values
}

func TestExecuteRejectsUnknownKindUpFront(t *testing.T) {
	e, st := testEngine(t)
	err := e.Execute([]types.Descriptor{
		{Operation: types.OpStaticValue, TargetCategory: "_a", TargetItems: []string{"x"},
			Parameters: types.Parameters{Value: "1"}},
		{Operation: "frobnicate", TargetCategory: "_b"},
	})
	require.ErrorIs(t, err, types.ErrUnknownOperation)
	// Nothing ran, including the valid first descriptor.
	assert.False(t, st.HasCategory("_a"))
}

func TestExecuteContinuesPastFailingDescriptor(t *testing.T) {
	e, st := testEngine(t)
	err := e.Execute([]types.Descriptor{
		{Operation: types.OpCopy, TargetCategory: "_a", TargetItems: []string{"x"},
			SourceCategory: "_nowhere", SourceItems: []string{"x"}},
		{Operation: types.OpStaticValue, TargetCategory: "_b", TargetItems: []string{"y"},
			Parameters: types.Parameters{Value: "ok"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, item(t, st, "_b", "y"))
}

func TestCopy(t *testing.T) {
	e, st := testEngine(t)
	st.SetItem("_src", "id", []string{"1", "2"})
	st.SetItem("_src", "name", []string{"a", "b"})

	require.NoError(t, e.copy(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"id", "label"},
		SourceCategory: "_src", SourceItems: []string{"id", "name"},
	}))
	assert.Equal(t, []string{"1", "2"}, item(t, st, "_dst", "id"))
	assert.Equal(t, []string{"a", "b"}, item(t, st, "_dst", "label"))
}

func TestCopyReadsModelSourceCategory(t *testing.T) {
	e, st := testEngineWithSources(t, map[string]string{
		"1abc.cif": "data_1ABC\n_exptl.method 'X-RAY DIFFRACTION'\n",
		"2xyz.cif": "data_2XYZ\n_exptl.method 'ELECTRON MICROSCOPY'\n",
	})

	require.NoError(t, e.copy(types.Descriptor{
		TargetCategory: "_inv_exptl", TargetItems: []string{"method"},
		SourceCategory: "_exptl", SourceItems: []string{"method"},
	}))
	assert.Equal(t,
		[]string{"X-RAY DIFFRACTION", "ELECTRON MICROSCOPY"},
		item(t, st, "_inv_exptl", "method"))
}

func TestCopyPrefersStoreCategoryOverModelSources(t *testing.T) {
	e, st := testEngineWithSources(t, map[string]string{
		"1abc.cif": "data_1ABC\n_exptl.method 'X-RAY DIFFRACTION'\n",
	})
	// A category an earlier descriptor built shadows the model files.
	st.SetItem("_exptl", "method", []string{"NEUTRON DIFFRACTION"})

	require.NoError(t, e.copy(types.Descriptor{
		TargetCategory: "_inv_exptl", TargetItems: []string{"method"},
		SourceCategory: "_exptl", SourceItems: []string{"method"},
	}))
	assert.Equal(t, []string{"NEUTRON DIFFRACTION"}, item(t, st, "_inv_exptl", "method"))
}

func TestCopyFillPadsToCategoryLength(t *testing.T) {
	e, st := testEngine(t)
	st.SetItem("_dst", "id", []string{"1", "2", "3", "4", "5"})
	st.SetItem("_src", "site", []string{"Diamond", "ESRF"})

	require.NoError(t, e.copyFill(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"site"},
		SourceCategory: "_src", SourceItems: []string{"site"},
		Parameters: types.Parameters{FillValue: "?"},
	}))
	assert.Equal(t, []string{"Diamond", "ESRF", "?", "?", "?"}, item(t, st, "_dst", "site"))
	assert.Empty(t, st.IntegrityCheck())
}

func TestCopyForEachRowExpandsScalars(t *testing.T) {
	e, st := testEngine(t)
	st.SetItem("_src", "id", []string{"1", "2", "3"})

	require.NoError(t, e.copyForEachRow(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"id", "status"},
		SourceCategory: "_src", SourceItems: []string{"id"},
		Parameters: types.Parameters{Values: map[string]string{"status": "released"}},
	}))
	assert.Equal(t, []string{"1", "2", "3"}, item(t, st, "_dst", "id"))
	assert.Equal(t, []string{"released", "released", "released"}, item(t, st, "_dst", "status"))
}

func TestCopyConditionalModifyReplacesMatches(t *testing.T) {
	e, st := testEngine(t)
	st.SetItem("_src", "method", []string{"man", "nat", "man"})

	require.NoError(t, e.copyConditionalModify(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"method"},
		SourceCategory: "_src", SourceItems: []string{"method"},
		Parameters: types.Parameters{
			MatchValues: []string{"man"},
			ReplaceWith: "genetically manipulated",
		},
	}))
	assert.Equal(t,
		[]string{"genetically manipulated", "nat", "genetically manipulated"},
		item(t, st, "_dst", "method"))
}

func TestStaticValue(t *testing.T) {
	e, st := testEngine(t)
	st.SetItem("_dst", "id", []string{"1", "2", "3"})

	require.NoError(t, e.staticValue(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"status"},
		Parameters: types.Parameters{Value: "REL"},
	}))
	assert.Equal(t, []string{"REL", "REL", "REL"}, item(t, st, "_dst", "status"))

	// Empty category without count falls back to one row.
	require.NoError(t, e.staticValue(types.Descriptor{
		TargetCategory: "_meta", TargetItems: []string{"version"},
		Parameters: types.Parameters{Value: "1.0"},
	}))
	assert.Equal(t, []string{"1.0"}, item(t, st, "_meta", "version"))
}

func TestAutoIncrement(t *testing.T) {
	e, st := testEngine(t)
	st.SetItem("_dst", "name", []string{"a", "b", "c", "d", "e", "f", "g"})

	require.NoError(t, e.autoIncrement(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"id"},
	}))
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7"}, item(t, st, "_dst", "id"))

	err := e.autoIncrement(types.Descriptor{
		TargetCategory: "_empty", TargetItems: []string{"id"},
	})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestIntersectionKeepsMatchingRows(t *testing.T) {
	e, st := testEngine(t)
	st.SetItem("_src", "id", []string{"1", "2", "3"})
	st.SetItem("_src", "acc", []string{"P1", "P2", "P3"})
	st.SetItem("_ref", "id", []string{"1", "3"})

	require.NoError(t, e.intersection(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"id", "acc"},
		SourceCategory: "_src", SourceItems: []string{"id", "acc"},
		Parameters: types.Parameters{
			OtherCategory: "_ref", OtherItem: "id",
		},
	}))
	assert.Equal(t, []string{"1", "3"}, item(t, st, "_dst", "id"))
	assert.Equal(t, []string{"P1", "P3"}, item(t, st, "_dst", "acc"))
}

func TestModifyIntersectionRewritesSurvivors(t *testing.T) {
	e, st := testEngine(t)
	st.SetItem("_src", "db", []string{"UNP", "PDB", "UNP"})
	st.SetItem("_ref", "db", []string{"UNP"})

	require.NoError(t, e.modifyIntersection(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"db"},
		SourceCategory: "_src", SourceItems: []string{"db"},
		Parameters: types.Parameters{
			OtherCategory: "_ref", OtherItem: "db",
			Replacements: map[string]string{"UNP": "UniProt"},
		},
	}))
	assert.Equal(t, []string{"UniProt", "UniProt"}, item(t, st, "_dst", "db"))
}

func TestConditionalUnionFiltersBothOperands(t *testing.T) {
	e, st := testEngine(t)
	st.SetItem("_a", "id", []string{"1", "2"})
	st.SetItem("_a", "kind", []string{"polymer", "water"})
	st.SetItem("_b", "id", []string{"3", "4"})
	st.SetItem("_b", "kind", []string{"polymer", "polymer"})

	require.NoError(t, e.conditionalUnion(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"id", "kind"},
		SourceCategory: "_a", SourceItems: []string{"id", "kind"},
		Parameters: types.Parameters{
			SecondaryCategory: "_b",
			Condition:         &types.Condition{Item: "kind", In: []string{"polymer"}},
		},
	}))
	assert.Equal(t, []string{"1", "3", "4"}, item(t, st, "_dst", "id"))
}

func TestDistinctUnionDeduplicates(t *testing.T) {
	e, st := testEngine(t)
	// Two sources sharing a polymer: identical entity ids union to one row.
	st.SetItem("_a", "ordinal", []string{"1", "2"})
	st.SetItem("_b", "ordinal", []string{"1"})

	require.NoError(t, e.distinctUnion(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"ordinal"},
		SourceCategory: "_a", SourceItems: []string{"ordinal"},
		Parameters: types.Parameters{
			SecondaryCategory: "_b",
			KeyItem:           "ordinal",
		},
	}))
	assert.Equal(t, []string{"1", "2"}, item(t, st, "_dst", "ordinal"))
}

func TestConditionalDistinctUnion(t *testing.T) {
	e, st := testEngine(t)
	st.SetItem("_a", "id", []string{"1", "1", "2"})
	st.SetItem("_a", "kind", []string{"polymer", "polymer", "water"})

	require.NoError(t, e.conditionalDistinctUnion(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"id", "kind"},
		SourceCategory: "_a", SourceItems: []string{"id", "kind"},
		Parameters: types.Parameters{
			KeyItem:   "id",
			Condition: &types.Condition{Item: "kind", NotIn: []string{"water"}},
		},
	}))
	assert.Equal(t, []string{"1"}, item(t, st, "_dst", "id"))
}

func TestDeletion(t *testing.T) {
	e, st := testEngine(t)
	st.SetItem("_dst", "id", []string{"1", "2", "3"})
	st.SetItem("_dst", "kind", []string{"polymer", "water", "polymer"})
	st.SetItem("_dst", "scratch", []string{"x", "y", "z"})

	require.NoError(t, e.deletion(types.Descriptor{
		TargetCategory: "_dst",
		Parameters: types.Parameters{
			DropItems: []string{"scratch"},
			Condition: &types.Condition{Item: "kind", In: []string{"water"}},
		},
	}))
	_, hasScratch := st.Item("_dst", "scratch")
	assert.False(t, hasScratch)
	assert.Equal(t, []string{"1", "3"}, item(t, st, "_dst", "id"))
}

func TestExternalInformationLookup(t *testing.T) {
	e, st := testEngine(t)
	path := filepath.Join(t.TempDir(), "descriptors.csv")
	require.NoError(t, os.WriteFile(path,
		[]byte("ATP,\"adenosine triphosphate\"\nHOH,water\n"), 0o644))

	st.SetItem("_chem", "comp_id", []string{"ATP", "XYZ", "HOH"})
	require.NoError(t, e.externalInformation(types.Descriptor{
		TargetCategory: "_chem", TargetItems: []string{"descriptor"},
		Parameters: types.Parameters{
			KeyItem: "comp_id",
			CSVFile: path,
		},
	}))
	assert.Equal(t,
		[]string{"adenosine triphosphate", "?", "water"},
		item(t, st, "_chem", "descriptor"))
}

func TestSQLQueryBindsColumnsPositionally(t *testing.T) {
	e, st := testEngine(t)
	require.NoError(t, e.surface.Exec("CREATE TABLE t (a TEXT, b TEXT)"))
	require.NoError(t, e.surface.Exec("INSERT INTO t VALUES ('1', 'x'), ('2', 'y')"))

	require.NoError(t, e.sqlQuery(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"id", "name"},
		Parameters: types.Parameters{Query: "SELECT a, b FROM t ORDER BY a"},
	}))
	assert.Equal(t, []string{"1", "2"}, item(t, st, "_dst", "id"))
	assert.Equal(t, []string{"x", "y"}, item(t, st, "_dst", "name"))
}

func TestSQLQueryColumnCountMismatchWritesNothing(t *testing.T) {
	e, st := testEngine(t)
	require.NoError(t, e.surface.Exec("CREATE TABLE t (a TEXT, b TEXT)"))
	require.NoError(t, e.surface.Exec("INSERT INTO t VALUES ('1', 'x')"))

	err := e.sqlQuery(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"id", "name", "extra"},
		Parameters: types.Parameters{Query: "SELECT a, b FROM t"},
	})
	require.ErrorIs(t, err, types.ErrColumnCountMismatch)
	assert.False(t, st.HasCategory("_dst"))
}

func TestSQLQueryRunsStatementOnce(t *testing.T) {
	e, st := testEngine(t)
	require.NoError(t, e.surface.Exec("CREATE TABLE t (n INTEGER)"))
	require.NoError(t, e.surface.Exec("INSERT INTO t VALUES (0)"))

	require.NoError(t, e.sqlQuery(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"n"},
		Parameters: types.Parameters{Query: "UPDATE t SET n = n + 1 RETURNING n"},
	}))
	assert.Equal(t, []string{"1"}, item(t, st, "_dst", "n"))

	rows, err := e.surface.QueryStrings("SELECT n FROM t")
	require.NoError(t, err)
	require.Equal(t, [][]string{{"1"}}, rows)
}

func TestSQLQuerySideEffectNotAppliedOnMismatch(t *testing.T) {
	e, st := testEngine(t)
	require.NoError(t, e.surface.Exec("CREATE TABLE t (n INTEGER)"))
	require.NoError(t, e.surface.Exec("INSERT INTO t VALUES (0)"))

	err := e.sqlQuery(types.Descriptor{
		TargetCategory: "_dst", TargetItems: []string{"n", "extra"},
		Parameters: types.Parameters{Query: "UPDATE t SET n = n + 1 RETURNING n"},
	})
	require.ErrorIs(t, err, types.ErrColumnCountMismatch)
	assert.False(t, st.HasCategory("_dst"))

	// The single execution still applied, exactly once.
	rows, err := e.surface.QueryStrings("SELECT n FROM t")
	require.NoError(t, err)
	require.Equal(t, [][]string{{"1"}}, rows)
}
