package types

// Logical catalog table names. These are the names reported by version
// classification and recorded in a store's table_versions table.
const (
	TableRarity       = "Rarity"
	TableExpansion    = "Expansion"
	TableCardType     = "CardType"
	TableRuling       = "Ruling"
	TableArtist       = "Artist"
	TableKeyword      = "Keyword"
	TableAbstractCard = "AbstractCard"
	TablePhysicalCard = "PhysicalCard"
	TableCardSet      = "CardSet"
)

// CatalogTables lists every logical table in migration order: lookup tables
// first, then AbstractCard, PhysicalCard and finally CardSet.
var CatalogTables = []string{
	TableRarity,
	TableExpansion,
	TableCardType,
	TableRuling,
	TableArtist,
	TableKeyword,
	TableAbstractCard,
	TablePhysicalCard,
	TableCardSet,
}
