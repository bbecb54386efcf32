package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// builtInRarity describes a rarity seeded into every new store.
type builtInRarity struct {
	name      string
	shortName string
}

// builtInRarities are the rarities every printed card can carry.
var builtInRarities = []builtInRarity{
	{"Common", "C"},
	{"Uncommon", "U"},
	{"Rare", "R"},
	{"Vampire", "V"},
	{"Promo", "P"},
	{"Precon", "PB"},
	{"Unknown", "?"},
}

// seedBuiltInRarities inserts the built-in rarities when the rarity table is
// empty. Seeding is idempotent.
func seedBuiltInRarities(ctx context.Context, tx *sql.Tx) error {
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM rarity").Scan(&count); err != nil {
		return fmt.Errorf("counting rarities: %w", err)
	}
	if count > 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO rarity (name, short_name) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("preparing rarity seed: %w", err)
	}
	defer stmt.Close()

	for _, r := range builtInRarities {
		if _, err := stmt.ExecContext(ctx, r.name, r.shortName); err != nil {
			return fmt.Errorf("seeding rarity %s: %w", r.name, err)
		}
	}
	return nil
}
