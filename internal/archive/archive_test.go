package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mesh-intelligence/cardshelf/internal/ordering"
	"github.com/mesh-intelligence/cardshelf/internal/sqlite"
	"github.com/mesh-intelligence/cardshelf/internal/sqlite/sqlitetest"
	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

func catalogStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s := sqlitetest.NewStore(t)
	sqlitetest.SeedCatalog(t, s)
	return s
}

func writeArchive(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sets.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := sqlitetest.NewStore(t)
	sqlitetest.SeedCurrent(t, src)

	path := filepath.Join(t.TempDir(), "out", "sets.jsonl")
	n, err := Export(ctx, src, path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"name":"Root"`)
	assert.NotContains(t, lines[0], "\n  ", "records are not pretty-printed")

	for _, strategy := range []ordering.Strategy{ordering.Worklist, ordering.Topological} {
		t.Run(string(strategy), func(t *testing.T) {
			dst := catalogStore(t)
			res, err := Import(ctx, dst, path, ImportOptions{Ordering: strategy, Logger: zaptest.NewLogger(t)})
			require.NoError(t, err)
			assert.Equal(t, 3, res.Imported)
			assert.Empty(t, res.Repairs)
			assert.Empty(t, res.StoreRepairs)

			assert.Equal(t, sqlitetest.ParentLinks(t, src), sqlitetest.ParentLinks(t, dst))
			want, err := src.CardSetByName(ctx, "Root")
			require.NoError(t, err)
			got, err := dst.CardSetByName(ctx, "Root")
			require.NoError(t, err)
			assert.Equal(t, want.Members, got.Members)
			assert.Equal(t, want.Annotations, got.Annotations)
		})
	}
}

func TestImport_ChildBeforeParentInFile(t *testing.T) {
	ctx := context.Background()
	path := writeArchive(t,
		`{"name":"C","parent":"B"}`,
		`{"name":"B","parent":"A"}`,
		`{"name":"A"}`,
	)
	s := catalogStore(t)
	res, err := Import(ctx, s, path, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, map[string]string{"A": "", "B": "A", "C": "B"}, sqlitetest.ParentLinks(t, s))
}

func TestImport_CutsCyclesInArchive(t *testing.T) {
	ctx := context.Background()
	path := writeArchive(t,
		`{"name":"A","parent":"B"}`,
		`{"name":"B","parent":"A"}`,
		`{"name":"Solo","parent":"Solo"}`,
	)
	s := catalogStore(t)
	res, err := Import(ctx, s, path, ImportOptions{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	require.Len(t, res.Repairs, 2)
	assert.Equal(t, "A -> B -> A", res.Repairs[0].Description())
	assert.Equal(t, "B -> A", res.Repairs[0].BrokenAt())
	assert.Equal(t, "Solo -> Solo", res.Repairs[1].Description())

	// Exactly one of A and B lost its parent.
	assert.Equal(t, map[string]string{"A": "B", "B": "", "Solo": ""}, sqlitetest.ParentLinks(t, s))
}

func TestImport_ParentFromStoreAndDroppedParent(t *testing.T) {
	ctx := context.Background()
	s := sqlitetest.NewStore(t)
	sqlitetest.SeedCurrent(t, s)

	path := writeArchive(t,
		`{"name":"Under Leaf","parent":"Leaf","cards":[{"card":"Dreams of the Sphinx"}]}`,
		`{"name":"Lost","parent":"Gone"}`,
	)
	res, err := Import(ctx, s, path, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Lost"}, res.DroppedParents)

	links := sqlitetest.ParentLinks(t, s)
	assert.Equal(t, "Leaf", links["Under Leaf"])
	assert.Equal(t, "", links["Lost"])
}

func TestImport_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	path := writeArchive(t,
		`{"name":"Good","cards":[{"card":"Alastor","expansion":"Jyhad"}]}`,
		`{"name":"Bad","cards":[{"card":"No Such Card"}]}`,
		`{"name":"Worse","cards":[{"card":"Alastor","expansion":"Sabbat"}]}`,
	)
	s := catalogStore(t)
	_, err := Import(ctx, s, path, ImportOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrLookupFailed)
	assert.Contains(t, err.Error(), "No Such Card")
	assert.Contains(t, err.Error(), "Sabbat")

	sets, err := s.CardSets(ctx)
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestImport_RejectsBadRecords(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		lines   []string
		wantErr error
	}{
		{"duplicate in archive", []string{`{"name":"A"}`, `{"name":"A"}`}, types.ErrDuplicateName},
		{"empty name", []string{`{"name":""}`}, types.ErrInvalidName},
		{"clashes with store", []string{`{"name":"Root"}`}, types.ErrDuplicateName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sqlitetest.NewStore(t)
			sqlitetest.SeedCurrent(t, s)
			_, err := Import(ctx, s, writeArchive(t, tt.lines...), ImportOptions{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestImport_MalformedLineImportsNothing(t *testing.T) {
	ctx := context.Background()
	path := writeArchive(t,
		`{"name":"A"}`,
		`{not json`,
		``,
		`{"name":"B","parent":"A"}`,
		`[1,`,
	)
	s := catalogStore(t)
	before := sqlitetest.RowCounts(t, s)

	res, err := Import(ctx, s, path, ImportOptions{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrMalformedArchive)
	assert.Contains(t, err.Error(), "lines [2 5]")
	assert.Equal(t, before, sqlitetest.RowCounts(t, s))
}

func TestReadJSONL_ReportsMalformedLines(t *testing.T) {
	path := writeArchive(t, `{"name":"A"}`, `{not json`, ``, `{"name":"B"}`)
	records, malformed, err := readJSONL(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, []int{2}, malformed)
}

func TestImport_MissingFile(t *testing.T) {
	s := catalogStore(t)
	_, err := Import(context.Background(), s, filepath.Join(t.TempDir(), "nope.jsonl"), ImportOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteJSONL_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	require.NoError(t, writeJSONL(path, nil))
	require.NoError(t, writeJSONL(path, nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.jsonl", entries[0].Name())
}
