// Package sqlitetest builds stores in known states for tests: current stores,
// stores at the previous schema generation, and seeded catalogs and card-set
// forests for both.
package sqlitetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cardshelf/internal/sqlite"
	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

// LegacyVersions is the previous schema generation of every catalog table.
var LegacyVersions = map[string]int{
	types.TableRarity:       2,
	types.TableExpansion:    3,
	types.TableCardType:     1,
	types.TableRuling:       1,
	types.TableArtist:       1,
	types.TableKeyword:      1,
	types.TableAbstractCard: 5,
	types.TablePhysicalCard: 1,
	types.TableCardSet:      6,
}

// Path returns a fresh store path under t.TempDir().
func Path(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "shelf.db")
}

// NewStore opens an initialized store at the current schema.
func NewStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(Path(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Init(context.Background()))
	return s
}

// NewStoreWithVersions opens a store whose tables are created at versions.
func NewStoreWithVersions(t *testing.T, versions map[string]int) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(Path(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateSchema(context.Background(), versions))
	return s
}

// NewLegacyStore opens a store at LegacyVersions seeded by SeedLegacy.
func NewLegacyStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s := NewStoreWithVersions(t, LegacyVersions)
	SeedLegacy(t, s)
	return s
}

func exec(t *testing.T, s *sqlite.Store, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		_, err := s.DB().ExecContext(context.Background(), stmt)
		require.NoError(t, err, stmt)
	}
}

// SeedLegacy fills a LegacyVersions store with a small catalog and the
// card-set chain Root <- Middle <- Leaf. Ids are chosen so every child has a
// smaller id than its parent.
func SeedLegacy(t *testing.T, s *sqlite.Store) {
	t.Helper()
	exec(t, s,
		"INSERT INTO rarity (id, name) VALUES (1, 'Common'), (2, 'Rare')",
		"INSERT INTO expansion (id, name) VALUES (1, 'Jyhad'), (2, 'Sabbat')",
		"INSERT INTO card_type (id, name) VALUES (1, 'Vampire'), (2, 'Master')",
		"INSERT INTO ruling (id, code, text) VALUES (1, 'LSJ 19990101', 'Cannot be played on a Tuesday.')",
		"INSERT INTO artist (id, name) VALUES (1, 'Richard Thomas')",
		"INSERT INTO keyword (id, value) VALUES (1, 'unique')",
		"INSERT INTO abstract_card (id, name, text) VALUES (1, 'Alastor', 'Political action.'), (2, 'Dreams of the Sphinx', 'Master.')",
		"INSERT INTO abs_rarity_pair (card_id, expansion_id, rarity_id) VALUES (1, 1, 2), (2, 1, 1), (2, 2, 1)",
		"INSERT INTO abs_card_type (card_id, card_type_id) VALUES (1, 2), (2, 2)",
		"INSERT INTO abs_ruling (card_id, ruling_id) VALUES (1, 1)",
		"INSERT INTO abs_artist (card_id, artist_id) VALUES (2, 1)",
		"INSERT INTO abs_keyword (card_id, keyword_id) VALUES (1, 1)",
		"INSERT INTO physical_card (id, abstract_card_id) VALUES (1, 1), (2, 2), (3, 1)",
		"INSERT INTO card_set (id, name, author, notes, parent_id) VALUES (3, 'Root', 'me', 'top level', NULL)",
		"INSERT INTO card_set (id, name, parent_id) VALUES (2, 'Middle', 3)",
		"INSERT INTO card_set (id, name, parent_id) VALUES (1, 'Leaf', 2)",
		"INSERT INTO card_set_member (card_set_id, position, physical_card_id) VALUES (3, 0, 1), (3, 1, 1), (3, 2, 2), (1, 0, 3)",
	)
}

// Catalog holds the ids SeedCatalog created.
type Catalog struct {
	Expansions    map[string]int64
	AbstractCards map[string]int64
	PhysicalCards []int64
}

// SeedCurrent fills an initialized current store with SeedCatalog and
// SeedCardSets.
func SeedCurrent(t *testing.T, s *sqlite.Store) Catalog {
	t.Helper()
	cat := SeedCatalog(t, s)
	SeedCardSets(t, s)
	return cat
}

// SeedCatalog adds two expansions, two abstract cards with their
// associations and three physical cards to an initialized current store.
func SeedCatalog(t *testing.T, s *sqlite.Store) Catalog {
	t.Helper()
	ctx := context.Background()
	cat := Catalog{Expansions: map[string]int64{}, AbstractCards: map[string]int64{}}

	for _, name := range []string{"Jyhad", "Sabbat"} {
		id, err := s.AddExpansion(ctx, name, name[:3])
		require.NoError(t, err)
		cat.Expansions[name] = id
	}
	master, err := s.AddCardType(ctx, "Master")
	require.NoError(t, err)
	artist, err := s.AddArtist(ctx, "Richard Thomas")
	require.NoError(t, err)
	keyword, err := s.AddKeyword(ctx, "unique")
	require.NoError(t, err)
	ruling, err := s.AddRuling(ctx, "Cannot be played on a Tuesday.", "LSJ 19990101")
	require.NoError(t, err)

	cards := []*types.AbstractCard{
		{Name: "Alastor", Text: "Political action.", CardTypes: []int64{master}, Rulings: []int64{ruling}, Keywords: []int64{keyword},
			RarityPairs: []types.RarityPair{{ExpansionID: cat.Expansions["Jyhad"], RarityID: 3}}},
		{Name: "Dreams of the Sphinx", Text: "Master.", CardTypes: []int64{master}, Artists: []int64{artist},
			RarityPairs: []types.RarityPair{{ExpansionID: cat.Expansions["Jyhad"], RarityID: 1}, {ExpansionID: cat.Expansions["Sabbat"], RarityID: 1}}},
	}
	for _, c := range cards {
		id, err := s.AddAbstractCard(ctx, c)
		require.NoError(t, err)
		cat.AbstractCards[c.Name] = id
	}

	jyhad := cat.Expansions["Jyhad"]
	for _, pc := range []struct {
		card string
		exp  *int64
	}{
		{"Alastor", &jyhad},
		{"Dreams of the Sphinx", nil},
		{"Alastor", nil},
	} {
		id, err := s.AddPhysicalCard(ctx, cat.AbstractCards[pc.card], pc.exp)
		require.NoError(t, err)
		cat.PhysicalCards = append(cat.PhysicalCards, id)
	}
	return cat
}

// SeedCardSets adds the chain Root <- Middle <- Leaf to a store seeded by
// SeedCatalog.
func SeedCardSets(t *testing.T, s *sqlite.Store) {
	t.Helper()
	for _, cs := range []*types.CardSet{
		{Name: "Root", Author: "me", Annotations: "top level", Members: []types.Member{
			{Card: "Alastor", Expansion: "Jyhad"}, {Card: "Alastor", Expansion: "Jyhad"}, {Card: "Dreams of the Sphinx"},
		}},
		{Name: "Middle", Parent: "Root", InUse: true},
		{Name: "Leaf", Parent: "Middle", Members: []types.Member{{Card: "Alastor"}}},
	} {
		_, err := s.CreateCardSet(context.Background(), cs)
		require.NoError(t, err)
	}
}

// RowCounts returns the store's row counts, failing the test on error.
func RowCounts(t *testing.T, s *sqlite.Store) map[string]int64 {
	t.Helper()
	counts, err := s.RowCounts(context.Background())
	require.NoError(t, err)
	return counts
}

// ParentLinks maps every card-set name to its parent's name ("" for roots),
// which compares forests independently of key assignment.
func ParentLinks(t *testing.T, s *sqlite.Store) map[string]string {
	t.Helper()
	rows, err := s.DB().QueryContext(context.Background(), `
		SELECT c.name, COALESCE(p.name, '') FROM card_set c LEFT JOIN card_set p ON p.id = c.parent_id`)
	require.NoError(t, err)
	defer rows.Close()
	links := make(map[string]string)
	for rows.Next() {
		var child, parent string
		require.NoError(t, rows.Scan(&child, &parent))
		links[child] = parent
	}
	require.NoError(t, rows.Err())
	return links
}
