package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/cardshelf/internal/cycles"
	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

var _ cycles.Store = (*Store)(nil)

// CardSetNodes returns every card set as a cycle-guard node, ordered by id.
func (s *Store) CardSetNodes(ctx context.Context) ([]cycles.Node, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, parent_id FROM card_set ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying card sets: %w", err)
	}
	defer rows.Close()

	var nodes []cycles.Node
	for rows.Next() {
		var n cycles.Node
		var parent sql.NullInt64
		if err := rows.Scan(&n.ID, &n.Name, &parent); err != nil {
			return nil, fmt.Errorf("scanning card set: %w", err)
		}
		n.Parent = ptrFromNull(parent)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// ClearParents sets the parent of every listed card set to NULL in one
// transaction.
func (s *Store) ClearParents(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, "UPDATE card_set SET parent_id = NULL WHERE id = ?", id); err != nil {
				return fmt.Errorf("clearing parent of card set %d: %w", id, err)
			}
		}
		return nil
	})
}

// CardSets returns every card set with its parent name and members, ordered
// by id.
func (s *Store) CardSets(ctx context.Context) ([]types.CardSet, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.author, c.comment, c.annotations, c.in_use, c.parent_id, COALESCE(p.name, '')
		FROM card_set c LEFT JOIN card_set p ON p.id = c.parent_id
		ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("querying card sets: %w", err)
	}
	var sets []types.CardSet
	index := make(map[int64]int)
	for rows.Next() {
		var cs types.CardSet
		var parent sql.NullInt64
		if err := rows.Scan(&cs.ID, &cs.Name, &cs.Author, &cs.Comment, &cs.Annotations,
			&cs.InUse, &parent, &cs.Parent); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning card set: %w", err)
		}
		cs.ParentID = ptrFromNull(parent)
		index[cs.ID] = len(sets)
		sets = append(sets, cs)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	members, err := s.db.QueryContext(ctx, `
		SELECT m.card_set_id, m.physical_card_id, a.name, COALESCE(e.name, '')
		FROM card_set_member m
		JOIN physical_card p ON p.id = m.physical_card_id
		JOIN abstract_card a ON a.id = p.abstract_card_id
		LEFT JOIN expansion e ON e.id = p.expansion_id
		ORDER BY m.card_set_id, m.position`)
	if err != nil {
		return nil, fmt.Errorf("querying card set members: %w", err)
	}
	defer members.Close()
	for members.Next() {
		var setID int64
		var m types.Member
		if err := members.Scan(&setID, &m.PhysicalCardID, &m.Card, &m.Expansion); err != nil {
			return nil, fmt.Errorf("scanning card set member: %w", err)
		}
		if i, ok := index[setID]; ok {
			sets[i].Members = append(sets[i].Members, m)
		}
	}
	return sets, members.Err()
}

// CardSetByName returns the named card set.
func (s *Store) CardSetByName(ctx context.Context, name string) (*types.CardSet, error) {
	sets, err := s.CardSets(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sets {
		if sets[i].Name == name {
			return &sets[i], nil
		}
	}
	return nil, fmt.Errorf("card set %q: %w", name, types.ErrNotFound)
}

// CreateCardSet stores cs and returns its id. A parent given by name is
// resolved; members without a physical card id are looked up by card and
// expansion name.
func (s *Store) CreateCardSet(ctx context.Context, cs *types.CardSet) (int64, error) {
	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if cs.ParentID == nil && cs.Parent != "" {
			pid, err := LookupCardSetID(ctx, tx, cs.Parent)
			if err != nil {
				return err
			}
			cs.ParentID = &pid
		}
		var err error
		id, err = InsertCardSet(ctx, tx, cs)
		return err
	})
	if err != nil {
		return 0, err
	}
	cs.ID = id
	return id, nil
}

// InsertCardSet inserts cs with cs.ParentID as parent and its members, in
// order, inside tx. Member lookups by name wrap types.ErrLookupFailed.
func InsertCardSet(ctx context.Context, tx *sql.Tx, cs *types.CardSet) (int64, error) {
	if err := cs.Validate(); err != nil {
		return 0, err
	}
	if _, err := LookupCardSetID(ctx, tx, cs.Name); err == nil {
		return 0, fmt.Errorf("card set %q: %w", cs.Name, types.ErrDuplicateName)
	} else if !errors.Is(err, types.ErrNotFound) {
		return 0, err
	}

	id, err := insertID(ctx, tx, `
		INSERT INTO card_set (name, author, comment, annotations, in_use, parent_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		cs.Name, cs.Author, cs.Comment, cs.Annotations, cs.InUse, nullable(cs.ParentID))
	if err != nil {
		return 0, fmt.Errorf("inserting card set %q: %w", cs.Name, err)
	}

	for pos := range cs.Members {
		m := &cs.Members[pos]
		if m.PhysicalCardID == 0 {
			pid, err := LookupPhysicalCard(ctx, tx, m.Card, m.Expansion)
			if err != nil {
				return 0, fmt.Errorf("card set %q: %w", cs.Name, err)
			}
			m.PhysicalCardID = pid
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO card_set_member (card_set_id, position, physical_card_id) VALUES (?, ?, ?)",
			id, pos, m.PhysicalCardID); err != nil {
			return 0, fmt.Errorf("inserting member of %q: %w", cs.Name, err)
		}
	}
	return id, nil
}

// LookupCardSetID returns the id of the named card set inside tx.
func LookupCardSetID(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM card_set WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("card set %q: %w", name, types.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("looking up card set %q: %w", name, err)
	}
	return id, nil
}

// SetParent points the named card set at parent, or detaches it when parent
// is empty. It does not check for cycles: edits may introduce them and the
// cycle guard repairs them.
func (s *Store) SetParent(ctx context.Context, name, parent string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := LookupCardSetID(ctx, tx, name)
		if err != nil {
			return err
		}
		var pid any
		if parent != "" {
			p, err := LookupCardSetID(ctx, tx, parent)
			if err != nil {
				return err
			}
			pid = p
		}
		_, err = tx.ExecContext(ctx, "UPDATE card_set SET parent_id = ? WHERE id = ?", pid, id)
		return err
	})
}

// DeleteCardSet removes the named card set and its members. Its children move
// up to its parent.
func (s *Store) DeleteCardSet(ctx context.Context, name string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := LookupCardSetID(ctx, tx, name)
		if err != nil {
			return err
		}
		var parent sql.NullInt64
		if err := tx.QueryRowContext(ctx, "SELECT parent_id FROM card_set WHERE id = ?", id).Scan(&parent); err != nil {
			return fmt.Errorf("reading parent of %q: %w", name, err)
		}
		stmts := []struct {
			query string
			args  []any
		}{
			{"UPDATE card_set SET parent_id = ? WHERE parent_id = ?", []any{nullable(ptrFromNull(parent)), id}},
			{"DELETE FROM card_set_member WHERE card_set_id = ?", []any{id}},
			{"DELETE FROM card_set WHERE id = ?", []any{id}},
		}
		for _, st := range stmts {
			if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
				return fmt.Errorf("deleting card set %q: %w", name, err)
			}
		}
		return nil
	})
}

// CardSetTree renders the card-set forest as an indented outline. The
// graph must be acyclic; run the cycle guard first.
func (s *Store) CardSetTree(ctx context.Context) (string, error) {
	sets, err := s.CardSets(ctx)
	if err != nil {
		return "", err
	}
	byID := make(map[int64]bool, len(sets))
	for _, cs := range sets {
		byID[cs.ID] = true
	}
	children := make(map[int64][]types.CardSet)
	var roots []types.CardSet
	for _, cs := range sets {
		if cs.ParentID == nil || !byID[*cs.ParentID] {
			roots = append(roots, cs)
			continue
		}
		children[*cs.ParentID] = append(children[*cs.ParentID], cs)
	}

	var b strings.Builder
	var walk func(cs types.CardSet, depth int)
	walk = func(cs types.CardSet, depth int) {
		fmt.Fprintf(&b, "%s%s (%d cards)\n", strings.Repeat("  ", depth), cs.Name, len(cs.Members))
		for _, c := range children[cs.ID] {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return b.String(), nil
}
