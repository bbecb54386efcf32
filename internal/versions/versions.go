// Package versions records which schema versions of every catalog table this
// build can read as-is or upgrade, and classifies existing stores against
// that record before a migration touches them.
//
// Version sets are enumerated, not ranges: historical versions may
// interleave, so a table accepts exactly the versions listed for it.
package versions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

// Entry is the version record of one table.
type Entry struct {
	Table       string
	Current     int
	Upgradeable []int
}

// Accepts reports whether the entry can read version, either directly or
// through an upgrade.
func (e Entry) Accepts(version int) bool {
	if version == e.Current {
		return true
	}
	for _, v := range e.Upgradeable {
		if v == version {
			return true
		}
	}
	return false
}

// Versions returns every accepted version, current first.
func (e Entry) Versions() []int {
	return append([]int{e.Current}, e.Upgradeable...)
}

// Registry maps tables to their version entries. A Registry is built once and
// read afterwards; it is not safe for concurrent Register calls.
type Registry struct {
	entries map[string]Entry
	order   []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or replaces the entry for table. Tables keep the order of
// their first registration.
func (r *Registry) Register(table string, current int, upgradeable ...int) *Registry {
	if _, ok := r.entries[table]; !ok {
		r.order = append(r.order, table)
	}
	r.entries[table] = Entry{Table: table, Current: current, Upgradeable: upgradeable}
	return r
}

// Entry returns the entry for table.
func (r *Registry) Entry(table string) (Entry, bool) {
	e, ok := r.entries[table]
	return e, ok
}

// Tables returns the registered tables in registration order.
func (r *Registry) Tables() []string {
	return append([]string(nil), r.order...)
}

// Current returns the current version of every registered table.
func (r *Registry) Current() map[string]int {
	out := make(map[string]int, len(r.entries))
	for t, e := range r.entries {
		out[t] = e.Current
	}
	return out
}

// Default returns the registry of this build: the current version of every
// catalog table and the single prior generation it upgrades from.
func Default() *Registry {
	return New().
		Register(types.TableRarity, 3, 2).
		Register(types.TableExpansion, 4, 3).
		Register(types.TableCardType, 2, 1).
		Register(types.TableRuling, 2, 1).
		Register(types.TableArtist, 1).
		Register(types.TableKeyword, 1).
		Register(types.TableAbstractCard, 6, 5).
		Register(types.TablePhysicalCard, 2, 1).
		Register(types.TableCardSet, 7, 6)
}

// Store is the version information a registry reads from a store.
type Store interface {
	TableVersion(ctx context.Context, table string) (version int, found bool, err error)
}

// Check reports whether the version s records for table is one of versions.
// A table with no recorded version never matches.
func Check(ctx context.Context, s Store, table string, versions ...int) (bool, error) {
	v, found, err := s.TableVersion(ctx, table)
	if err != nil {
		return false, fmt.Errorf("checking %s version: %w", table, err)
	}
	if !found {
		return false, nil
	}
	for _, want := range versions {
		if v == want {
			return true, nil
		}
	}
	return false, nil
}

// Classification partitions the registered tables of a store.
type Classification struct {
	// Compatible tables are at the current version.
	Compatible []string `json:"compatible"`
	// Upgradeable tables are at a version the registry upgrades from.
	Upgradeable []string `json:"upgradeable"`
	// Unknown tables are missing or at a version this build cannot read.
	Unknown []string `json:"unknown"`

	// Found holds the recorded version of every table that has one.
	Found map[string]int `json:"found"`
}

// Current reports whether every table is already at its current version.
func (c Classification) Current() bool {
	return len(c.Upgradeable) == 0 && len(c.Unknown) == 0
}

// Err returns an UnknownVersionError when any table is unknown.
func (c Classification) Err() error {
	if len(c.Unknown) == 0 {
		return nil
	}
	return &UnknownVersionError{Tables: c.Unknown, Found: c.Found}
}

// ClassifyStore classifies every registered table of s. It reads only.
func (r *Registry) ClassifyStore(ctx context.Context, s Store) (Classification, error) {
	c := Classification{Found: make(map[string]int)}
	for _, table := range r.order {
		e := r.entries[table]
		v, found, err := s.TableVersion(ctx, table)
		if err != nil {
			return Classification{}, fmt.Errorf("classifying %s: %w", table, err)
		}
		switch {
		case !found:
			c.Unknown = append(c.Unknown, table)
		case v == e.Current:
			c.Found[table] = v
			c.Compatible = append(c.Compatible, table)
		case e.Accepts(v):
			c.Found[table] = v
			c.Upgradeable = append(c.Upgradeable, table)
		default:
			c.Found[table] = v
			c.Unknown = append(c.Unknown, table)
		}
	}
	return c, nil
}

// UnknownVersionError reports tables whose schema version this build cannot
// read. No store has been modified when it is returned.
type UnknownVersionError struct {
	Tables []string
	Found  map[string]int
}

func (e *UnknownVersionError) Error() string {
	parts := make([]string, 0, len(e.Tables))
	for _, t := range e.Tables {
		if v, ok := e.Found[t]; ok {
			parts = append(parts, fmt.Sprintf("%s (version %d)", t, v))
		} else {
			parts = append(parts, t+" (no version)")
		}
	}
	sort.Strings(parts)
	return "unknown schema version: " + strings.Join(parts, ", ")
}
