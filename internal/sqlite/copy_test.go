package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cardshelf/internal/ordering"
	"github.com/mesh-intelligence/cardshelf/internal/sqlite"
	"github.com/mesh-intelligence/cardshelf/internal/sqlite/sqlitetest"
	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

var copyFuncs = []struct {
	table string
	fn    sqlite.CopyFunc
}{
	{types.TableRarity, sqlite.CopyRarity},
	{types.TableExpansion, sqlite.CopyExpansion},
	{types.TableCardType, sqlite.CopyCardType},
	{types.TableRuling, sqlite.CopyRuling},
	{types.TableArtist, sqlite.CopyArtist},
	{types.TableKeyword, sqlite.CopyKeyword},
	{types.TableAbstractCard, sqlite.CopyAbstractCard},
	{types.TablePhysicalCard, sqlite.CopyPhysicalCard},
	{types.TableCardSet, sqlite.CopyCardSet},
}

type rowFailure struct {
	table, row string
	err        error
}

// copyAll copies every table of src into an empty current-schema store, one
// transaction per table, and returns the destination and row failures.
func copyAll(t *testing.T, src *sqlite.Store, strategy ordering.Strategy) (*sqlite.Store, []rowFailure) {
	t.Helper()
	ctx := context.Background()
	dst := sqlitetest.NewStoreWithVersions(t, sqlite.CurrentVersions)

	var failures []rowFailure
	for _, c := range copyFuncs {
		version, found, err := src.TableVersion(ctx, c.table)
		require.NoError(t, err)
		require.True(t, found, c.table)

		err = dst.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := c.fn(ctx, &sqlite.CopyJob{
				Src:      src,
				Dst:      tx,
				Version:  version,
				Ordering: strategy,
				Fail: func(row string, err error) {
					failures = append(failures, rowFailure{c.table, row, err})
				},
			})
			return err
		})
		require.NoError(t, err, c.table)
	}
	return dst, failures
}

func TestCopy_UpgradesLegacyStore(t *testing.T) {
	ctx := context.Background()
	src := sqlitetest.NewLegacyStore(t)

	for _, strategy := range []ordering.Strategy{ordering.Worklist, ordering.Topological} {
		t.Run(string(strategy), func(t *testing.T) {
			dst, failures := copyAll(t, src, strategy)
			assert.Empty(t, failures)
			assert.Equal(t, sqlitetest.RowCounts(t, src), sqlitetest.RowCounts(t, dst))
			assert.Equal(t, map[string]string{"Root": "", "Middle": "Root", "Leaf": "Middle"},
				sqlitetest.ParentLinks(t, dst))

			var short string
			require.NoError(t, dst.DB().QueryRowContext(ctx,
				"SELECT short_name FROM rarity WHERE name = 'Common'").Scan(&short))
			assert.Equal(t, "Com", short)

			require.NoError(t, dst.DB().QueryRowContext(ctx,
				"SELECT short_name FROM expansion WHERE name = 'Sabbat'").Scan(&short))
			assert.Equal(t, "Sabbat", short)

			var canonical string
			require.NoError(t, dst.DB().QueryRowContext(ctx,
				"SELECT canonical_name FROM abstract_card WHERE id = 2").Scan(&canonical))
			assert.Equal(t, "dreams of the sphinx", canonical)

			var nullExpansions int
			require.NoError(t, dst.DB().QueryRowContext(ctx,
				"SELECT COUNT(*) FROM physical_card WHERE expansion_id IS NULL").Scan(&nullExpansions))
			assert.Equal(t, 3, nullExpansions)

			root, err := dst.CardSetByName(ctx, "Root")
			require.NoError(t, err)
			assert.Equal(t, "top level", root.Annotations)
			assert.False(t, root.InUse)
			require.Len(t, root.Members, 3)
			assert.Equal(t, "Alastor", root.Members[0].Card)
			assert.Equal(t, "Dreams of the Sphinx", root.Members[2].Card)
		})
	}
}

func TestCopy_CurrentStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := sqlitetest.NewStore(t)
	sqlitetest.SeedCurrent(t, src)

	dst, failures := copyAll(t, src, ordering.Worklist)
	assert.Empty(t, failures)
	assert.Equal(t, sqlitetest.RowCounts(t, src), sqlitetest.RowCounts(t, dst))
	assert.Equal(t, sqlitetest.ParentLinks(t, src), sqlitetest.ParentLinks(t, dst))

	middle, err := dst.CardSetByName(ctx, "Middle")
	require.NoError(t, err)
	assert.True(t, middle.InUse)
}

func TestCopy_MissingReferenceFailsRow(t *testing.T) {
	src := sqlitetest.NewLegacyStore(t)
	_, err := src.DB().Exec("INSERT INTO physical_card (id, abstract_card_id) VALUES (9, 42)")
	require.NoError(t, err)

	_, failures := copyAll(t, src, ordering.Worklist)
	require.Len(t, failures, 1)
	assert.Equal(t, types.TablePhysicalCard, failures[0].table)
	assert.Equal(t, "physical card 9", failures[0].row)
	assert.ErrorIs(t, failures[0].err, types.ErrLookupFailed)
}

func TestCopy_MemberOfFailedCardFailsCardSet(t *testing.T) {
	src := sqlitetest.NewLegacyStore(t)
	_, err := src.DB().Exec("INSERT INTO card_set_member (card_set_id, position, physical_card_id) VALUES (2, 0, 77)")
	require.NoError(t, err)

	dst, failures := copyAll(t, src, ordering.Topological)
	require.NotEmpty(t, failures)
	assert.Equal(t, `card set "Middle"`, failures[0].row)
	assert.ErrorIs(t, failures[0].err, types.ErrLookupFailed)

	// Leaf's parent was not copied, so Leaf fails too.
	require.Len(t, failures, 2)
	assert.Equal(t, `card set "Leaf"`, failures[1].row)
	assert.Equal(t, map[string]string{"Root": ""}, sqlitetest.ParentLinks(t, dst))
}

func TestCopyCardSet_CycleIsAnError(t *testing.T) {
	ctx := context.Background()
	src := sqlitetest.NewLegacyStore(t)
	_, err := src.DB().Exec("UPDATE card_set SET parent_id = 1 WHERE id = 3")
	require.NoError(t, err)

	dst := sqlitetest.NewStoreWithVersions(t, sqlite.CurrentVersions)
	err = dst.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := sqlite.CopyCardSet(ctx, &sqlite.CopyJob{Src: src, Dst: tx, Version: 6})
		return err
	})
	var cycleErr *ordering.DependencyCycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Len(t, cycleErr.Pending, 3)
}

func TestCopy_UnsupportedVersion(t *testing.T) {
	ctx := context.Background()
	src := sqlitetest.NewStore(t)
	dst := sqlitetest.NewStoreWithVersions(t, sqlite.CurrentVersions)

	err := dst.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := sqlite.CopyAbstractCard(ctx, &sqlite.CopyJob{Src: src, Dst: tx, Version: 4})
		return err
	})
	assert.ErrorContains(t, err, "cannot copy AbstractCard from version 4")
}
