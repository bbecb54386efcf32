// Package sqlite implements the SQLite store that holds the card catalog and
// the user's card sets, together with the per-table copy functions used to
// stage and promote schema upgrades.
package sqlite

import "github.com/mesh-intelligence/cardshelf/pkg/types"

// createTableVersions creates the table that records the schema version of
// every logical table in a store.
const createTableVersions = `CREATE TABLE IF NOT EXISTS table_versions (
    table_name TEXT PRIMARY KEY,
    version INTEGER NOT NULL
);`

// Lookup tables.
const (
	createRarityV2 = `CREATE TABLE rarity (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);`

	createRarityV3 = `CREATE TABLE rarity (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    short_name TEXT NOT NULL
);`

	createExpansionV3 = `CREATE TABLE expansion (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);`

	createExpansionV4 = `CREATE TABLE expansion (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    short_name TEXT NOT NULL
);`

	// card_type and ruling kept their layout across the version bump.
	createCardType = `CREATE TABLE card_type (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);`

	createRuling = `CREATE TABLE ruling (
    id INTEGER PRIMARY KEY,
    text TEXT NOT NULL,
    code TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT ''
);`

	createArtist = `CREATE TABLE artist (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);`

	createKeyword = `CREATE TABLE keyword (
    id INTEGER PRIMARY KEY,
    value TEXT NOT NULL UNIQUE
);`
)

// Abstract cards and their n:m association tables.
const (
	createAbstractCardV5 = `CREATE TABLE abstract_card (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    text TEXT NOT NULL DEFAULT ''
);`

	createAbstractCardV6 = `CREATE TABLE abstract_card (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    canonical_name TEXT NOT NULL UNIQUE,
    text TEXT NOT NULL DEFAULT ''
);`

	createAbsRarityPair = `CREATE TABLE abs_rarity_pair (
    card_id INTEGER NOT NULL REFERENCES abstract_card(id),
    expansion_id INTEGER NOT NULL REFERENCES expansion(id),
    rarity_id INTEGER NOT NULL REFERENCES rarity(id),
    PRIMARY KEY (card_id, expansion_id, rarity_id)
);`

	createAbsCardType = `CREATE TABLE abs_card_type (
    card_id INTEGER NOT NULL REFERENCES abstract_card(id),
    card_type_id INTEGER NOT NULL REFERENCES card_type(id),
    PRIMARY KEY (card_id, card_type_id)
);`

	createAbsRuling = `CREATE TABLE abs_ruling (
    card_id INTEGER NOT NULL REFERENCES abstract_card(id),
    ruling_id INTEGER NOT NULL REFERENCES ruling(id),
    PRIMARY KEY (card_id, ruling_id)
);`

	createAbsArtist = `CREATE TABLE abs_artist (
    card_id INTEGER NOT NULL REFERENCES abstract_card(id),
    artist_id INTEGER NOT NULL REFERENCES artist(id),
    PRIMARY KEY (card_id, artist_id)
);`

	createAbsKeyword = `CREATE TABLE abs_keyword (
    card_id INTEGER NOT NULL REFERENCES abstract_card(id),
    keyword_id INTEGER NOT NULL REFERENCES keyword(id),
    PRIMARY KEY (card_id, keyword_id)
);`
)

// Physical cards.
const (
	createPhysicalCardV1 = `CREATE TABLE physical_card (
    id INTEGER PRIMARY KEY,
    abstract_card_id INTEGER NOT NULL REFERENCES abstract_card(id)
);`

	createPhysicalCardV2 = `CREATE TABLE physical_card (
    id INTEGER PRIMARY KEY,
    abstract_card_id INTEGER NOT NULL REFERENCES abstract_card(id),
    expansion_id INTEGER REFERENCES expansion(id)
);`
)

// Card sets and their ordered membership.
const (
	createCardSetV6 = `CREATE TABLE card_set (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    author TEXT NOT NULL DEFAULT '',
    comment TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    parent_id INTEGER REFERENCES card_set(id)
);`

	createCardSetV7 = `CREATE TABLE card_set (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    author TEXT NOT NULL DEFAULT '',
    comment TEXT NOT NULL DEFAULT '',
    annotations TEXT NOT NULL DEFAULT '',
    in_use INTEGER NOT NULL DEFAULT 0,
    parent_id INTEGER REFERENCES card_set(id)
);`

	createCardSetMember = `CREATE TABLE card_set_member (
    card_set_id INTEGER NOT NULL REFERENCES card_set(id),
    position INTEGER NOT NULL,
    physical_card_id INTEGER NOT NULL REFERENCES physical_card(id),
    PRIMARY KEY (card_set_id, position)
);`
)

// Index DDL for common lookups.
const (
	idxPhysicalCardAbstract = `CREATE INDEX idx_physical_card_abstract ON physical_card(abstract_card_id);`
	idxCardSetParent        = `CREATE INDEX idx_card_set_parent ON card_set(parent_id);`
	idxCardSetMemberCard    = `CREATE INDEX idx_card_set_member_card ON card_set_member(physical_card_id);`
)

// tableDDL maps each logical table and schema version to the statements that
// create it. Every version a registry accepts must have an entry here.
var tableDDL = map[string]map[int][]string{
	types.TableRarity: {
		2: {createRarityV2},
		3: {createRarityV3},
	},
	types.TableExpansion: {
		3: {createExpansionV3},
		4: {createExpansionV4},
	},
	types.TableCardType: {
		1: {createCardType},
		2: {createCardType},
	},
	types.TableRuling: {
		1: {createRuling},
		2: {createRuling},
	},
	types.TableArtist: {
		1: {createArtist},
	},
	types.TableKeyword: {
		1: {createKeyword},
	},
	types.TableAbstractCard: {
		5: {createAbstractCardV5, createAbsRarityPair, createAbsCardType, createAbsRuling, createAbsArtist, createAbsKeyword},
		6: {createAbstractCardV6, createAbsRarityPair, createAbsCardType, createAbsRuling, createAbsArtist, createAbsKeyword},
	},
	types.TablePhysicalCard: {
		1: {createPhysicalCardV1, idxPhysicalCardAbstract},
		2: {createPhysicalCardV2, idxPhysicalCardAbstract},
	},
	types.TableCardSet: {
		6: {createCardSetV6, createCardSetMember, idxCardSetParent, idxCardSetMemberCard},
		7: {createCardSetV7, createCardSetMember, idxCardSetParent, idxCardSetMemberCard},
	},
}

// CurrentVersions is the schema version of every logical table this code
// writes. It never changes at runtime.
var CurrentVersions = map[string]int{
	types.TableRarity:       3,
	types.TableExpansion:    4,
	types.TableCardType:     2,
	types.TableRuling:       2,
	types.TableArtist:       1,
	types.TableKeyword:      1,
	types.TableAbstractCard: 6,
	types.TablePhysicalCard: 2,
	types.TableCardSet:      7,
}

// sqlTables maps each logical table to the SQL tables that hold its rows, in
// creation order. Row counts and drops operate on these.
var sqlTables = map[string][]string{
	types.TableRarity:       {"rarity"},
	types.TableExpansion:    {"expansion"},
	types.TableCardType:     {"card_type"},
	types.TableRuling:       {"ruling"},
	types.TableArtist:       {"artist"},
	types.TableKeyword:      {"keyword"},
	types.TableAbstractCard: {"abstract_card", "abs_rarity_pair", "abs_card_type", "abs_ruling", "abs_artist", "abs_keyword"},
	types.TablePhysicalCard: {"physical_card"},
	types.TableCardSet:      {"card_set", "card_set_member"},
}

// HasDDL reports whether this package can create table at version.
func HasDDL(table string, version int) bool {
	_, ok := tableDDL[table][version]
	return ok
}

// SQLTables returns the SQL tables backing a logical table.
func SQLTables(table string) []string {
	return sqlTables[table]
}
