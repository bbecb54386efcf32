// Package shelf is the public API for cardshelf stores. It opens a store by
// path, runs one operation and closes it again, keeping the store, the
// migration engine and the cycle guard internal.
//
// Example:
//
//	if err := shelf.Init(ctx, "shelf.db"); err != nil {
//	    return err
//	}
//	res, err := shelf.Upgrade(ctx, "shelf.db", shelf.Options{Logger: log})
package shelf

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/cardshelf/internal/cycles"
	"github.com/mesh-intelligence/cardshelf/internal/migrate"
	"github.com/mesh-intelligence/cardshelf/internal/ordering"
	"github.com/mesh-intelligence/cardshelf/internal/sqlite"
	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

// Version is the release of this build.
const Version = "0.1.0"

// Options configures Upgrade and RepairCycles. The zero value is usable.
type Options struct {
	// StagingDir defaults to the directory of the store.
	StagingDir string
	// Ordering is types.OrderingWorklist (default) or
	// types.OrderingTopological.
	Ordering string
	Logger   *zap.Logger
	Progress types.ProgressSink
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Init creates the store at path at the current schema. An initialized
// store is left unchanged.
func Init(ctx context.Context, path string) error {
	s, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Init(ctx)
}

// Upgrade brings the store at path to the current schema through a staging
// copy. The result is filled in even when err is non-nil.
func Upgrade(ctx context.Context, path string, opts Options) (types.UpgradeResult, error) {
	strategy, err := ordering.ParseStrategy(opts.Ordering)
	if err != nil {
		return types.UpgradeResult{}, err
	}

	s, err := openInitialized(ctx, path)
	if err != nil {
		return types.UpgradeResult{}, err
	}
	defer s.Close()

	e := migrate.New(s, migrate.Options{
		StagingDir: opts.StagingDir,
		Ordering:   strategy,
		Logger:     opts.logger(),
	})
	// The guard writes; it only runs when every table is readable.
	if _, err := e.CheckCanRead(ctx); err == nil {
		if _, err := cycles.Guard(ctx, s, opts.logger()); err != nil {
			return types.UpgradeResult{}, err
		}
	}
	report, err := e.AttemptUpgrade(ctx, opts.Progress)
	return types.UpgradeResult{
		RunID:        report.RunID,
		OK:           report.OK,
		Upgraded:     report.Classification.Upgradeable,
		FailedTables: report.FailedTables(),
		Messages:     report.Messages,
		Warning:      report.Warning,
	}, err
}

// RepairCycles breaks every cycle in the card-set tree of the store at path
// and returns the repairs made. A store with a table at an unknown version is
// rejected with a *versions.UnknownVersionError and left unchanged.
func RepairCycles(ctx context.Context, path string, opts Options) ([]types.CycleRepair, error) {
	s, err := openInitialized(ctx, path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if _, err := migrate.New(s, migrate.Options{Logger: opts.logger()}).CheckCanRead(ctx); err != nil {
		return nil, err
	}

	repairs, err := cycles.Guard(ctx, s, opts.logger())
	if err != nil {
		return nil, err
	}
	out := make([]types.CycleRepair, len(repairs))
	for i, r := range repairs {
		out[i] = types.CycleRepair{Cycle: r.Cycle, Child: r.Child.Name, Parent: r.Parent.Name}
	}
	return out, nil
}

func openInitialized(ctx context.Context, path string) (*sqlite.Store, error) {
	s, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	ok, err := s.Initialized(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	if !ok {
		s.Close()
		return nil, fmt.Errorf("store %s: %w", path, types.ErrNotFound)
	}
	return s, nil
}
