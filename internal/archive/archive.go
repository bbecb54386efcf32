// Package archive exports card sets to JSONL files and imports them back.
//
// Each line holds one card set: its name, descriptive fields, the name of its
// parent and its members as (card, expansion) names. Archives are untrusted:
// parents named in a file may form cycles, which are cut before anything is
// written, and the store's card-set graph is checked again after the import.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/cardshelf/internal/cycles"
	"github.com/mesh-intelligence/cardshelf/internal/ordering"
	"github.com/mesh-intelligence/cardshelf/internal/sqlite"
	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

// ErrMalformedArchive is returned by Import when any line of the archive is
// not valid JSON. Nothing is imported.
var ErrMalformedArchive = errors.New("malformed archive")

// Export writes every card set of s to path, parents before children, and
// returns the number written. The file is replaced atomically.
func Export(ctx context.Context, s *sqlite.Store, path string) (int, error) {
	sets, err := s.CardSets(ctx)
	if err != nil {
		return 0, err
	}

	records := make([]json.RawMessage, 0, len(sets))
	err = ordering.Visit(ordering.Topological, sets,
		func(cs types.CardSet) int64 { return cs.ID },
		func(cs types.CardSet) (int64, bool) {
			if cs.ParentID == nil {
				return 0, false
			}
			return *cs.ParentID, true
		},
		func(cs types.CardSet) error {
			data, err := json.Marshal(cs)
			if err != nil {
				return fmt.Errorf("encoding card set %q: %w", cs.Name, err)
			}
			records = append(records, data)
			return nil
		})
	if err != nil {
		return 0, fmt.Errorf("ordering card sets: %w", err)
	}

	if err := writeJSONL(path, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// ImportOptions configures Import.
type ImportOptions struct {
	Ordering ordering.Strategy
	Logger   *zap.Logger
}

// ImportResult describes a finished import.
type ImportResult struct {
	Imported int `json:"imported"`
	// Repairs are the cycles cut among the archive's own records.
	Repairs []cycles.Repair `json:"repairs,omitempty"`
	// DroppedParents names the records whose parent existed neither in the
	// archive nor in the store; they were imported as roots.
	DroppedParents []string `json:"dropped_parents,omitempty"`
	// StoreRepairs are the cycles the guard cut in the store afterwards.
	StoreRepairs []cycles.Repair `json:"store_repairs,omitempty"`
}

// Import reads card sets from path into s in a single transaction. Either
// every record is imported or none is: a malformed line fails the import with
// ErrMalformedArchive before the store is touched, and the returned error
// accumulates every failing record.
func Import(ctx context.Context, s *sqlite.Store, path string, opts ImportOptions) (*ImportResult, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	raw, malformed, err := readJSONL(path)
	if err != nil {
		return nil, err
	}
	if len(malformed) > 0 {
		return nil, fmt.Errorf("%s: lines %v: %w", path, malformed, ErrMalformedArchive)
	}
	res := &ImportResult{}

	sets, err := decode(raw)
	if err != nil {
		return nil, err
	}
	res.Repairs = cutCycles(sets)
	for _, r := range res.Repairs {
		log.Warn("breaking cycle in archive",
			zap.String("cycle", r.Description()),
			zap.String("broken_at", r.BrokenAt()))
	}

	inFile := make(map[string]bool, len(sets))
	for _, cs := range sets {
		inFile[cs.Name] = true
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		ids := make(map[string]int64, len(sets))
		var errs error
		visitErr := ordering.Visit(opts.Ordering, sets,
			func(cs *types.CardSet) string { return cs.Name },
			func(cs *types.CardSet) (string, bool) {
				return cs.Parent, cs.Parent != "" && inFile[cs.Parent]
			},
			func(cs *types.CardSet) error {
				if err := resolveParent(ctx, tx, cs, ids, inFile, res); err != nil {
					errs = multierr.Append(errs, err)
					return nil
				}
				id, err := sqlite.InsertCardSet(ctx, tx, cs)
				if err != nil {
					errs = multierr.Append(errs, err)
					return nil
				}
				ids[cs.Name] = id
				return nil
			})
		if visitErr != nil {
			return fmt.Errorf("ordering archive records: %w", visitErr)
		}
		return errs
	})
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", path, err)
	}
	res.Imported = len(sets)
	for _, name := range res.DroppedParents {
		log.Warn("parent not found, imported as root", zap.String("card_set", name))
	}

	res.StoreRepairs, err = cycles.Guard(ctx, s, log)
	if err != nil {
		return res, err
	}
	log.Info("archive imported", zap.String("file", path), zap.Int("card_sets", res.Imported))
	return res, nil
}

// decode parses archive records. Names must be unique within an archive.
func decode(raw []json.RawMessage) ([]*types.CardSet, error) {
	var errs error
	seen := make(map[string]bool, len(raw))
	sets := make([]*types.CardSet, 0, len(raw))
	for i, data := range raw {
		cs := &types.CardSet{}
		if err := json.Unmarshal(data, cs); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("record %d: %w", i+1, err))
			continue
		}
		if err := cs.Validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("record %d: %w", i+1, err))
			continue
		}
		if seen[cs.Name] {
			errs = multierr.Append(errs, fmt.Errorf("record %d: card set %q: %w", i+1, cs.Name, types.ErrDuplicateName))
			continue
		}
		seen[cs.Name] = true
		sets = append(sets, cs)
	}
	return sets, errs
}

// cutCycles breaks every cycle formed by parents named inside the archive.
// Records get synthetic ids in file order so repairs are reproducible.
func cutCycles(sets []*types.CardSet) []cycles.Repair {
	index := make(map[string]int64, len(sets))
	for i, cs := range sets {
		index[cs.Name] = int64(i + 1)
	}
	nodes := make([]cycles.Node, len(sets))
	for i, cs := range sets {
		nodes[i] = cycles.Node{ID: int64(i + 1), Name: cs.Name}
		if pid, ok := index[cs.Parent]; ok {
			nodes[i].Parent = &pid
		}
	}
	repairs := cycles.Find(nodes)
	for i, n := range cycles.Apply(nodes, repairs) {
		if nodes[i].Parent != nil && n.Parent == nil {
			sets[i].Parent = ""
		}
	}
	return repairs
}

func resolveParent(ctx context.Context, tx *sql.Tx, cs *types.CardSet, ids map[string]int64, inFile map[string]bool, res *ImportResult) error {
	cs.ParentID = nil
	if cs.Parent == "" {
		return nil
	}
	if inFile[cs.Parent] {
		id, ok := ids[cs.Parent]
		if !ok {
			return fmt.Errorf("card set %q: parent %q was not imported: %w", cs.Name, cs.Parent, types.ErrLookupFailed)
		}
		cs.ParentID = &id
		return nil
	}
	id, err := sqlite.LookupCardSetID(ctx, tx, cs.Parent)
	if errors.Is(err, types.ErrNotFound) {
		res.DroppedParents = append(res.DroppedParents, cs.Name)
		cs.Parent = ""
		return nil
	}
	if err != nil {
		return err
	}
	cs.ParentID = &id
	return nil
}
