package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/cardshelf/internal/ordering"
	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

// CopyJob carries one table copy from a source store into a destination
// transaction. Version is the source store's schema version for the table;
// copy functions read that layout and always write the current one.
type CopyJob struct {
	Src      *Store
	Dst      *sql.Tx
	Version  int
	Ordering ordering.Strategy

	// Progress receives one Advance per copied record. Nil is legal.
	Progress types.ProgressSink

	// Fail records a row-level failure. The copy continues with the next
	// record; the caller decides what a failed row means for the table.
	Fail func(row string, err error)
}

// CopyFunc copies one logical table and returns the number of records
// written. A returned error means the copy could not run at all; row-level
// problems go through CopyJob.Fail.
type CopyFunc func(ctx context.Context, job *CopyJob) (int, error)

func (j *CopyJob) fail(row string, err error) {
	if j.Fail != nil {
		j.Fail(row, err)
	}
}

func (j *CopyJob) info(msg string) {
	if j.Progress != nil {
		j.Progress.Info(msg)
	}
}

// record runs fn inside a savepoint so every record is copied all-or-nothing.
// It reports whether the record was written.
func (j *CopyJob) record(ctx context.Context, row string, fn func() error) bool {
	if _, err := j.Dst.ExecContext(ctx, "SAVEPOINT copy_record"); err != nil {
		j.fail(row, err)
		return false
	}
	if err := fn(); err != nil {
		_, _ = j.Dst.ExecContext(ctx, "ROLLBACK TO copy_record")
		_, _ = j.Dst.ExecContext(ctx, "RELEASE copy_record")
		j.fail(row, err)
		return false
	}
	if _, err := j.Dst.ExecContext(ctx, "RELEASE copy_record"); err != nil {
		j.fail(row, err)
		return false
	}
	if j.Progress != nil {
		j.Progress.Advance(1)
	}
	return true
}

func unsupported(table string, version int) error {
	return fmt.Errorf("cannot copy %s from version %d", table, version)
}

func queryAll(ctx context.Context, db *sql.DB, query string, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// requireRow fails with types.ErrLookupFailed when table has no row with id
// in the destination.
func requireRow(ctx context.Context, tx *sql.Tx, table string, id int64) error {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s %d", types.ErrLookupFailed, table, id)
	}
	return err
}

// simpleCopy describes a lookup table copied row for row with its ids kept.
type simpleCopy struct {
	table   string
	label   string
	selects map[int]string
	insert  string
	upgrade func(version int, vals []any)
}

func (sc simpleCopy) run(ctx context.Context, job *CopyJob) (int, error) {
	query, ok := sc.selects[job.Version]
	if !ok {
		return 0, unsupported(sc.table, job.Version)
	}

	var records [][]any
	err := queryAll(ctx, job.Src.db, query, func(r *sql.Rows) error {
		cols, err := r.Columns()
		if err != nil {
			return err
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := r.Scan(ptrs...); err != nil {
			return err
		}
		records = append(records, vals)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", sc.table, err)
	}

	copied := 0
	for _, vals := range records {
		if sc.upgrade != nil {
			sc.upgrade(job.Version, vals)
		}
		label := fmt.Sprintf("%s %v", sc.label, stringValue(vals[1]))
		if job.record(ctx, label, func() error {
			_, err := job.Dst.ExecContext(ctx, sc.insert, vals...)
			return err
		}) {
			copied++
		}
	}
	return copied, nil
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// deriveShortName builds a short name from the first three letters of name.
func deriveShortName(name string) string {
	r := []rune(name)
	if len(r) > 3 {
		r = r[:3]
	}
	return string(r)
}

// CopyRarity copies rarities. Version 2 has no short name; one is derived.
func CopyRarity(ctx context.Context, job *CopyJob) (int, error) {
	return simpleCopy{
		table: types.TableRarity,
		label: "rarity",
		selects: map[int]string{
			2: "SELECT id, name, '' FROM rarity ORDER BY id",
			3: "SELECT id, name, short_name FROM rarity ORDER BY id",
		},
		insert: "INSERT INTO rarity (id, name, short_name) VALUES (?, ?, ?)",
		upgrade: func(version int, vals []any) {
			if version == 2 {
				vals[2] = deriveShortName(stringValue(vals[1]))
			}
		},
	}.run(ctx, job)
}

// CopyExpansion copies expansions. Version 3 has no short name; the full
// name is used.
func CopyExpansion(ctx context.Context, job *CopyJob) (int, error) {
	return simpleCopy{
		table: types.TableExpansion,
		label: "expansion",
		selects: map[int]string{
			3: "SELECT id, name, name FROM expansion ORDER BY id",
			4: "SELECT id, name, short_name FROM expansion ORDER BY id",
		},
		insert: "INSERT INTO expansion (id, name, short_name) VALUES (?, ?, ?)",
	}.run(ctx, job)
}

// CopyCardType copies card types; versions 1 and 2 share a layout.
func CopyCardType(ctx context.Context, job *CopyJob) (int, error) {
	q := "SELECT id, name FROM card_type ORDER BY id"
	return simpleCopy{
		table:   types.TableCardType,
		label:   "card type",
		selects: map[int]string{1: q, 2: q},
		insert:  "INSERT INTO card_type (id, name) VALUES (?, ?)",
	}.run(ctx, job)
}

// CopyRuling copies rulings; versions 1 and 2 share a layout.
func CopyRuling(ctx context.Context, job *CopyJob) (int, error) {
	q := "SELECT id, code, text, url FROM ruling ORDER BY id"
	return simpleCopy{
		table:   types.TableRuling,
		label:   "ruling",
		selects: map[int]string{1: q, 2: q},
		insert:  "INSERT INTO ruling (id, code, text, url) VALUES (?, ?, ?, ?)",
	}.run(ctx, job)
}

// CopyArtist copies artists.
func CopyArtist(ctx context.Context, job *CopyJob) (int, error) {
	return simpleCopy{
		table:   types.TableArtist,
		label:   "artist",
		selects: map[int]string{1: "SELECT id, name FROM artist ORDER BY id"},
		insert:  "INSERT INTO artist (id, name) VALUES (?, ?)",
	}.run(ctx, job)
}

// CopyKeyword copies keywords.
func CopyKeyword(ctx context.Context, job *CopyJob) (int, error) {
	return simpleCopy{
		table:   types.TableKeyword,
		label:   "keyword",
		selects: map[int]string{1: "SELECT id, value FROM keyword ORDER BY id"},
		insert:  "INSERT INTO keyword (id, value) VALUES (?, ?)",
	}.run(ctx, job)
}

// CopyAbstractCard copies abstract cards with all their associations. Each
// associated rarity, expansion, card type, ruling, artist and keyword must
// already exist in the destination; a missing one fails that card.
// Version 5 has no canonical name; it is computed from the name.
func CopyAbstractCard(ctx context.Context, job *CopyJob) (int, error) {
	var query string
	switch job.Version {
	case 5:
		query = "SELECT id, name, '', text FROM abstract_card ORDER BY id"
	case 6:
		query = "SELECT id, name, canonical_name, text FROM abstract_card ORDER BY id"
	default:
		return 0, unsupported(types.TableAbstractCard, job.Version)
	}

	var cards []*types.AbstractCard
	byID := make(map[int64]*types.AbstractCard)
	err := queryAll(ctx, job.Src.db, query, func(r *sql.Rows) error {
		c := &types.AbstractCard{}
		if err := r.Scan(&c.ID, &c.Name, &c.CanonicalName, &c.Text); err != nil {
			return err
		}
		if job.Version == 5 {
			c.CanonicalName = types.CanonicalName(c.Name)
		}
		cards = append(cards, c)
		byID[c.ID] = c
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reading abstract cards: %w", err)
	}

	err = queryAll(ctx, job.Src.db,
		"SELECT card_id, expansion_id, rarity_id FROM abs_rarity_pair ORDER BY card_id, expansion_id, rarity_id",
		func(r *sql.Rows) error {
			var cardID int64
			var p types.RarityPair
			if err := r.Scan(&cardID, &p.ExpansionID, &p.RarityID); err != nil {
				return err
			}
			if c, ok := byID[cardID]; ok {
				c.RarityPairs = append(c.RarityPairs, p)
			}
			return nil
		})
	if err != nil {
		return 0, fmt.Errorf("reading rarity pairs: %w", err)
	}

	links := []struct {
		query string
		add   func(c *types.AbstractCard, id int64)
	}{
		{"SELECT card_id, card_type_id FROM abs_card_type ORDER BY card_id, card_type_id",
			func(c *types.AbstractCard, id int64) { c.CardTypes = append(c.CardTypes, id) }},
		{"SELECT card_id, ruling_id FROM abs_ruling ORDER BY card_id, ruling_id",
			func(c *types.AbstractCard, id int64) { c.Rulings = append(c.Rulings, id) }},
		{"SELECT card_id, artist_id FROM abs_artist ORDER BY card_id, artist_id",
			func(c *types.AbstractCard, id int64) { c.Artists = append(c.Artists, id) }},
		{"SELECT card_id, keyword_id FROM abs_keyword ORDER BY card_id, keyword_id",
			func(c *types.AbstractCard, id int64) { c.Keywords = append(c.Keywords, id) }},
	}
	for _, l := range links {
		err := queryAll(ctx, job.Src.db, l.query, func(r *sql.Rows) error {
			var cardID, other int64
			if err := r.Scan(&cardID, &other); err != nil {
				return err
			}
			if c, ok := byID[cardID]; ok {
				l.add(c, other)
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("reading card associations: %w", err)
		}
	}

	copied := 0
	for _, c := range cards {
		if job.record(ctx, fmt.Sprintf("abstract card %q", c.Name), func() error {
			return copyAbstractCard(ctx, job.Dst, c)
		}) {
			copied++
		}
	}
	return copied, nil
}

func copyAbstractCard(ctx context.Context, tx *sql.Tx, c *types.AbstractCard) error {
	for _, p := range c.RarityPairs {
		if err := requireRow(ctx, tx, "expansion", p.ExpansionID); err != nil {
			return err
		}
		if err := requireRow(ctx, tx, "rarity", p.RarityID); err != nil {
			return err
		}
	}
	refs := []struct {
		table string
		ids   []int64
	}{
		{"card_type", c.CardTypes},
		{"ruling", c.Rulings},
		{"artist", c.Artists},
		{"keyword", c.Keywords},
	}
	for _, ref := range refs {
		for _, id := range ref.ids {
			if err := requireRow(ctx, tx, ref.table, id); err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO abstract_card (id, name, canonical_name, text) VALUES (?, ?, ?, ?)",
		c.ID, c.Name, c.CanonicalName, c.Text); err != nil {
		return err
	}
	return insertAssociations(ctx, tx, c.ID, c)
}

// CopyPhysicalCard copies physical cards, keeping ids. The abstract card and
// any expansion must already exist in the destination. Version 1 has no
// expansion; upgraded cards have an unspecified expansion.
func CopyPhysicalCard(ctx context.Context, job *CopyJob) (int, error) {
	var query string
	switch job.Version {
	case 1:
		query = "SELECT id, abstract_card_id, NULL FROM physical_card ORDER BY id"
	case 2:
		query = "SELECT id, abstract_card_id, expansion_id FROM physical_card ORDER BY id"
	default:
		return 0, unsupported(types.TablePhysicalCard, job.Version)
	}

	var cards []types.PhysicalCard
	err := queryAll(ctx, job.Src.db, query, func(r *sql.Rows) error {
		var pc types.PhysicalCard
		var exp sql.NullInt64
		if err := r.Scan(&pc.ID, &pc.AbstractCardID, &exp); err != nil {
			return err
		}
		pc.ExpansionID = ptrFromNull(exp)
		cards = append(cards, pc)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reading physical cards: %w", err)
	}

	copied := 0
	for _, pc := range cards {
		if job.record(ctx, fmt.Sprintf("physical card %d", pc.ID), func() error {
			if err := requireRow(ctx, job.Dst, "abstract_card", pc.AbstractCardID); err != nil {
				return err
			}
			if pc.ExpansionID != nil {
				if err := requireRow(ctx, job.Dst, "expansion", *pc.ExpansionID); err != nil {
					return err
				}
			}
			_, err := job.Dst.ExecContext(ctx,
				"INSERT INTO physical_card (id, abstract_card_id, expansion_id) VALUES (?, ?, ?)",
				pc.ID, pc.AbstractCardID, nullable(pc.ExpansionID))
			return err
		}) {
			copied++
		}
	}
	return copied, nil
}

type sourceCardSet struct {
	types.CardSet
	memberIDs []int64
}

// CopyCardSet copies card sets parent-before-child using job.Ordering. Card
// sets receive fresh ids in the destination; parent references are rewritten
// to the new ids and every member must resolve to a physical card that
// already exists there. Version 6 keeps annotations in a notes column and
// has no in-use flag.
func CopyCardSet(ctx context.Context, job *CopyJob) (int, error) {
	var query string
	switch job.Version {
	case 6:
		query = "SELECT id, name, author, comment, notes, 0, parent_id FROM card_set ORDER BY id"
	case 7:
		query = "SELECT id, name, author, comment, annotations, in_use, parent_id FROM card_set ORDER BY id"
	default:
		return 0, unsupported(types.TableCardSet, job.Version)
	}

	var sets []*sourceCardSet
	byID := make(map[int64]*sourceCardSet)
	err := queryAll(ctx, job.Src.db, query, func(r *sql.Rows) error {
		cs := &sourceCardSet{}
		var parent sql.NullInt64
		if err := r.Scan(&cs.ID, &cs.Name, &cs.Author, &cs.Comment, &cs.Annotations, &cs.InUse, &parent); err != nil {
			return err
		}
		cs.ParentID = ptrFromNull(parent)
		sets = append(sets, cs)
		byID[cs.ID] = cs
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reading card sets: %w", err)
	}

	err = queryAll(ctx, job.Src.db,
		"SELECT card_set_id, physical_card_id FROM card_set_member ORDER BY card_set_id, position",
		func(r *sql.Rows) error {
			var setID, physID int64
			if err := r.Scan(&setID, &physID); err != nil {
				return err
			}
			if cs, ok := byID[setID]; ok {
				cs.memberIDs = append(cs.memberIDs, physID)
			}
			return nil
		})
	if err != nil {
		return 0, fmt.Errorf("reading card set members: %w", err)
	}

	newIDs := make(map[int64]int64, len(sets))
	copied := 0
	visit := func(cs *sourceCardSet) error {
		label := fmt.Sprintf("card set %q", cs.Name)
		var parent any
		if cs.ParentID != nil {
			if id, ok := newIDs[*cs.ParentID]; ok {
				parent = id
			} else if _, inSource := byID[*cs.ParentID]; inSource {
				job.fail(label, fmt.Errorf("%w: parent card set %d was not copied", types.ErrLookupFailed, *cs.ParentID))
				return nil
			} else {
				job.info(fmt.Sprintf("%s: dropping reference to missing parent %d", label, *cs.ParentID))
			}
		}

		var newID int64
		if job.record(ctx, label, func() error {
			var err error
			newID, err = insertID(ctx, job.Dst, `
				INSERT INTO card_set (name, author, comment, annotations, in_use, parent_id)
				VALUES (?, ?, ?, ?, ?, ?)`,
				cs.Name, cs.Author, cs.Comment, cs.Annotations, cs.InUse, parent)
			if err != nil {
				return err
			}
			for pos, physID := range cs.memberIDs {
				if err := requireRow(ctx, job.Dst, "physical_card", physID); err != nil {
					return err
				}
				if _, err := job.Dst.ExecContext(ctx,
					"INSERT INTO card_set_member (card_set_id, position, physical_card_id) VALUES (?, ?, ?)",
					newID, pos, physID); err != nil {
					return err
				}
			}
			return nil
		}) {
			newIDs[cs.ID] = newID
			copied++
		}
		return nil
	}

	err = ordering.Visit(job.Ordering, sets,
		func(cs *sourceCardSet) int64 { return cs.ID },
		func(cs *sourceCardSet) (int64, bool) {
			if cs.ParentID == nil {
				return 0, false
			}
			return *cs.ParentID, true
		},
		visit)
	if err != nil {
		return copied, fmt.Errorf("ordering card sets: %w", err)
	}
	return copied, nil
}
