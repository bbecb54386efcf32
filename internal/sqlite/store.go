package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

// Store is one SQLite database file holding a card catalog and card sets.
// The live store and a staging store are both Stores; nothing in this
// package keeps a process-wide "current" store.
type Store struct {
	mu     sync.RWMutex
	path   string
	db     *sql.DB
	closed bool
}

// Open opens the SQLite database at path, creating the file and its parent
// directory when missing. The schema is not touched; call Init to create a
// fresh store.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, types.ErrStorePathEmpty
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{path: path, db: db}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying handle. Callers must not hold it past Close.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database handle. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.ErrStoreClosed
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction commits only when fn
// returns nil; every other exit, including a panic, rolls it back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true
	return nil
}

// Initialized reports whether the store carries a table_versions table.
func (s *Store) Initialized(ctx context.Context) (bool, error) {
	return tableExists(ctx, s.db, "table_versions")
}

// Init creates the current schema and seeds built-in rows when the store is
// empty. Init on an initialized store does nothing.
func (s *Store) Init(ctx context.Context) error {
	ok, err := s.Initialized(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := createSchema(ctx, tx, CurrentVersions); err != nil {
			return err
		}
		return seedBuiltInRarities(ctx, tx)
	})
}

// CreateSchema creates every table in versions at the given version and
// records the versions. It is how staging stores are built and how older
// stores are reproduced.
func (s *Store) CreateSchema(ctx context.Context, versions map[string]int) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return createSchema(ctx, tx, versions)
	})
}

func createSchema(ctx context.Context, tx *sql.Tx, versions map[string]int) error {
	if _, err := tx.ExecContext(ctx, createTableVersions); err != nil {
		return fmt.Errorf("creating table_versions: %w", err)
	}
	for _, table := range orderedTables(versions) {
		version := versions[table]
		ddl, ok := tableDDL[table][version]
		if !ok {
			return fmt.Errorf("no schema for %s version %d", table, version)
		}
		for _, stmt := range ddl {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("creating %s v%d: %w", table, version, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO table_versions (table_name, version) VALUES (?, ?)",
			table, version); err != nil {
			return fmt.Errorf("recording %s version: %w", table, err)
		}
	}
	return nil
}

// orderedTables returns the tables of versions in catalog order, followed by
// any unknown names sorted alphabetically.
func orderedTables(versions map[string]int) []string {
	var out []string
	known := make(map[string]bool, len(types.CatalogTables))
	for _, t := range types.CatalogTables {
		known[t] = true
		if _, ok := versions[t]; ok {
			out = append(out, t)
		}
	}
	var extra []string
	for t := range versions {
		if !known[t] {
			extra = append(extra, t)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Reset drops every catalog table and recreates them, empty, at versions in
// one transaction. A version without a schema rolls the whole reset back.
func (s *Store) Reset(ctx context.Context, versions map[string]int) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for i := len(types.CatalogTables) - 1; i >= 0; i-- {
			names := sqlTables[types.CatalogTables[i]]
			for j := len(names) - 1; j >= 0; j-- {
				if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+names[j]); err != nil {
					return fmt.Errorf("dropping %s: %w", names[j], err)
				}
			}
		}
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS table_versions"); err != nil {
			return fmt.Errorf("dropping table_versions: %w", err)
		}
		return createSchema(ctx, tx, versions)
	})
}

// TableVersion returns the recorded schema version of table. found is false
// when the store records no version for it.
func (s *Store) TableVersion(ctx context.Context, table string) (version int, found bool, err error) {
	ok, err := s.Initialized(ctx)
	if err != nil || !ok {
		return 0, false, err
	}
	err = s.db.QueryRowContext(ctx,
		"SELECT version FROM table_versions WHERE table_name = ?", table).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading %s version: %w", table, err)
	}
	return version, true, nil
}

// TableVersions returns every recorded table version.
func (s *Store) TableVersions(ctx context.Context) (map[string]int, error) {
	versions := make(map[string]int)
	ok, err := s.Initialized(ctx)
	if err != nil || !ok {
		return versions, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT table_name, version FROM table_versions")
	if err != nil {
		return nil, fmt.Errorf("reading table versions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var v int
		if err := rows.Scan(&name, &v); err != nil {
			return nil, fmt.Errorf("scanning table version: %w", err)
		}
		versions[name] = v
	}
	return versions, rows.Err()
}

// RowCounts returns the row count of every existing SQL table backing the
// catalog tables, keyed by SQL table name.
func (s *Store) RowCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, table := range types.CatalogTables {
		for _, name := range sqlTables[table] {
			ok, err := tableExists(ctx, s.db, name)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			n, err := countRows(ctx, s.db, name)
			if err != nil {
				return nil, err
			}
			counts[name] = n
		}
	}
	return counts, nil
}

// CountRows returns the number of rows in the primary SQL table of a logical
// table, or zero when it does not exist.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	names := sqlTables[table]
	if len(names) == 0 {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	ok, err := tableExists(ctx, s.db, names[0])
	if err != nil || !ok {
		return 0, err
	}
	return countRows(ctx, s.db, names[0])
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableExists(ctx context.Context, q queryer, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return n > 0, nil
}

func countRows(ctx context.Context, q queryer, name string) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", name, err)
	}
	return n, nil
}
