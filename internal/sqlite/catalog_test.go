package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cardshelf/internal/sqlite"
	"github.com/mesh-intelligence/cardshelf/internal/sqlite/sqlitetest"
	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

func TestAddRarityAfterSeed(t *testing.T) {
	s := sqlitetest.NewStore(t)
	id, err := s.AddRarity(context.Background(), "Promo", "Pro")
	require.NoError(t, err)
	assert.Equal(t, int64(8), id)
	assert.Equal(t, int64(8), sqlitetest.RowCounts(t, s)["rarity"])
}

func TestAddAbstractCardStoresCanonicalName(t *testing.T) {
	ctx := context.Background()
	s := sqlitetest.NewStore(t)

	card := &types.AbstractCard{Name: "  Dreams of the Sphinx "}
	_, err := s.AddAbstractCard(ctx, card)
	require.NoError(t, err)
	assert.Equal(t, "dreams of the sphinx", card.CanonicalName)

	var canonical string
	require.NoError(t, s.DB().QueryRowContext(ctx,
		"SELECT canonical_name FROM abstract_card WHERE id = ?", card.ID).Scan(&canonical))
	assert.Equal(t, "dreams of the sphinx", canonical)
}

func TestLookupPhysicalCard(t *testing.T) {
	ctx := context.Background()
	s := sqlitetest.NewStore(t)
	cat := sqlitetest.SeedCatalog(t, s)

	tests := []struct {
		name      string
		card      string
		expansion string
		want      int64
		wantErr   bool
	}{
		{"by expansion", "Alastor", "Jyhad", cat.PhysicalCards[0], false},
		{"unspecified expansion", "Alastor", "", cat.PhysicalCards[2], false},
		{"case-insensitive name", "DREAMS OF THE SPHINX", "", cat.PhysicalCards[1], false},
		{"no copy in expansion", "Alastor", "Sabbat", 0, true},
		{"unknown card", "Nobody", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int64
			err := s.WithTx(ctx, func(tx *sql.Tx) error {
				var err error
				got, err = sqlite.LookupPhysicalCard(ctx, tx, tt.card, tt.expansion)
				return err
			})
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrLookupFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
