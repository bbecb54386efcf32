package types

import "strings"

// AbstractCard is an immutable catalog definition of a card together with
// its n:m associations. Associations travel with every copy of the card.
type AbstractCard struct {
	ID            int64
	Name          string
	CanonicalName string
	Text          string
	RarityPairs   []RarityPair
	CardTypes     []int64
	Rulings       []int64
	Artists       []int64
	Keywords      []int64
}

// RarityPair records the rarity a card was printed at in one expansion.
type RarityPair struct {
	ExpansionID int64
	RarityID    int64
}

// PhysicalCard is an (abstract card, expansion) pair. A nil ExpansionID
// means the expansion is unspecified.
type PhysicalCard struct {
	ID             int64
	AbstractCardID int64
	ExpansionID    *int64
}

// CanonicalName folds a card name to the form used for lookups.
func CanonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
