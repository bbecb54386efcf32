package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertID(ctx context.Context, e execer, query string, args ...any) (int64, error) {
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddRarity inserts a rarity and returns its id.
func (s *Store) AddRarity(ctx context.Context, name, shortName string) (int64, error) {
	id, err := insertID(ctx, s.db, "INSERT INTO rarity (name, short_name) VALUES (?, ?)", name, shortName)
	if err != nil {
		return 0, fmt.Errorf("adding rarity %s: %w", name, err)
	}
	return id, nil
}

// AddExpansion inserts an expansion and returns its id.
func (s *Store) AddExpansion(ctx context.Context, name, shortName string) (int64, error) {
	id, err := insertID(ctx, s.db, "INSERT INTO expansion (name, short_name) VALUES (?, ?)", name, shortName)
	if err != nil {
		return 0, fmt.Errorf("adding expansion %s: %w", name, err)
	}
	return id, nil
}

// AddCardType inserts a card type and returns its id.
func (s *Store) AddCardType(ctx context.Context, name string) (int64, error) {
	id, err := insertID(ctx, s.db, "INSERT INTO card_type (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("adding card type %s: %w", name, err)
	}
	return id, nil
}

// AddRuling inserts a ruling and returns its id.
func (s *Store) AddRuling(ctx context.Context, text, code string) (int64, error) {
	id, err := insertID(ctx, s.db, "INSERT INTO ruling (text, code) VALUES (?, ?)", text, code)
	if err != nil {
		return 0, fmt.Errorf("adding ruling %s: %w", code, err)
	}
	return id, nil
}

// AddArtist inserts an artist and returns its id.
func (s *Store) AddArtist(ctx context.Context, name string) (int64, error) {
	id, err := insertID(ctx, s.db, "INSERT INTO artist (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("adding artist %s: %w", name, err)
	}
	return id, nil
}

// AddKeyword inserts a keyword and returns its id.
func (s *Store) AddKeyword(ctx context.Context, value string) (int64, error) {
	id, err := insertID(ctx, s.db, "INSERT INTO keyword (value) VALUES (?)", value)
	if err != nil {
		return 0, fmt.Errorf("adding keyword %s: %w", value, err)
	}
	return id, nil
}

// AddAbstractCard inserts a card with all of its associations in one
// transaction and returns the card id.
func (s *Store) AddAbstractCard(ctx context.Context, card *types.AbstractCard) (int64, error) {
	if card.Name == "" {
		return 0, types.ErrInvalidName
	}
	canonical := card.CanonicalName
	if canonical == "" {
		canonical = types.CanonicalName(card.Name)
	}
	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = insertID(ctx, tx,
			"INSERT INTO abstract_card (name, canonical_name, text) VALUES (?, ?, ?)",
			card.Name, canonical, card.Text)
		if err != nil {
			return err
		}
		return insertAssociations(ctx, tx, id, card)
	})
	if err != nil {
		return 0, fmt.Errorf("adding abstract card %s: %w", card.Name, err)
	}
	card.ID = id
	card.CanonicalName = canonical
	return id, nil
}

func insertAssociations(ctx context.Context, tx *sql.Tx, cardID int64, card *types.AbstractCard) error {
	for _, p := range card.RarityPairs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO abs_rarity_pair (card_id, expansion_id, rarity_id) VALUES (?, ?, ?)",
			cardID, p.ExpansionID, p.RarityID); err != nil {
			return fmt.Errorf("rarity pair: %w", err)
		}
	}
	links := []struct {
		query string
		ids   []int64
	}{
		{"INSERT INTO abs_card_type (card_id, card_type_id) VALUES (?, ?)", card.CardTypes},
		{"INSERT INTO abs_ruling (card_id, ruling_id) VALUES (?, ?)", card.Rulings},
		{"INSERT INTO abs_artist (card_id, artist_id) VALUES (?, ?)", card.Artists},
		{"INSERT INTO abs_keyword (card_id, keyword_id) VALUES (?, ?)", card.Keywords},
	}
	for _, l := range links {
		for _, other := range l.ids {
			if _, err := tx.ExecContext(ctx, l.query, cardID, other); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddPhysicalCard inserts a physical card for an abstract card. A nil
// expansionID leaves the expansion unspecified.
func (s *Store) AddPhysicalCard(ctx context.Context, abstractCardID int64, expansionID *int64) (int64, error) {
	id, err := insertID(ctx, s.db,
		"INSERT INTO physical_card (abstract_card_id, expansion_id) VALUES (?, ?)",
		abstractCardID, nullable(expansionID))
	if err != nil {
		return 0, fmt.Errorf("adding physical card: %w", err)
	}
	return id, nil
}

// LookupPhysicalCard finds the physical card for a card name and expansion
// name inside tx. An empty expansion selects the card with an unspecified
// expansion. Failures wrap types.ErrLookupFailed.
func LookupPhysicalCard(ctx context.Context, tx *sql.Tx, card, expansion string) (int64, error) {
	var absID int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM abstract_card WHERE canonical_name = ?", types.CanonicalName(card)).Scan(&absID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: unknown card %q", types.ErrLookupFailed, card)
	}
	if err != nil {
		return 0, fmt.Errorf("looking up card %q: %w", card, err)
	}

	var physID int64
	if expansion == "" {
		err = tx.QueryRowContext(ctx,
			"SELECT id FROM physical_card WHERE abstract_card_id = ? AND expansion_id IS NULL ORDER BY id LIMIT 1",
			absID).Scan(&physID)
	} else {
		err = tx.QueryRowContext(ctx,
			`SELECT p.id FROM physical_card p JOIN expansion e ON e.id = p.expansion_id
			 WHERE p.abstract_card_id = ? AND e.name = ? ORDER BY p.id LIMIT 1`,
			absID, expansion).Scan(&physID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: no copy of %q in expansion %q", types.ErrLookupFailed, card, expansion)
	}
	if err != nil {
		return 0, fmt.Errorf("looking up physical card %q: %w", card, err)
	}
	return physID, nil
}

func nullable(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func ptrFromNull(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
