package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/cardshelf/internal/cycles"
	"github.com/mesh-intelligence/cardshelf/internal/migrate"
	"github.com/mesh-intelligence/cardshelf/internal/ordering"
	"github.com/mesh-intelligence/cardshelf/internal/sqlite"
	"github.com/mesh-intelligence/cardshelf/internal/versions"
)

// storeAccess is the schema state a command needs before it may touch a
// store.
type storeAccess int

const (
	// anyVersion opens any initialized store; the command only reads versions.
	anyVersion storeAccess = iota
	// readable requires every table to be current or upgradeable.
	readable
	// current requires every table to be at its current version.
	current
)

// openStore opens the configured store, which must already be initialized,
// and classifies it as access requires. A table at an unknown version is a
// user error, and so is an upgradeable table when access is current. Only
// then, with repair set and repair_on_open enabled, does the cycle guard run.
// The caller must Close the store.
func (a *app) openStore(ctx context.Context, access storeAccess, repair bool) (*sqlite.Store, []cycles.Repair, error) {
	s, err := sqlite.Open(a.config.StorePath)
	if err != nil {
		return nil, nil, sysError(fmt.Errorf("open store: %w", err))
	}
	ok, err := s.Initialized(ctx)
	if err != nil {
		s.Close()
		return nil, nil, sysError(err)
	}
	if !ok {
		s.Close()
		return nil, nil, userError(fmt.Errorf("store %s is not initialized; run shelf init", a.config.StorePath))
	}
	if access != anyVersion {
		if err := a.checkAccess(ctx, s, access); err != nil {
			s.Close()
			return nil, nil, err
		}
	}
	if !repair || !a.config.RepairOnOpen {
		return s, nil, nil
	}
	repairs, err := cycles.Guard(ctx, s, a.log)
	if err != nil {
		s.Close()
		return nil, nil, sysError(fmt.Errorf("repair card-set cycles: %w", err))
	}
	return s, repairs, nil
}

func (a *app) checkAccess(ctx context.Context, s *sqlite.Store, access storeAccess) error {
	c, err := a.engine(s).CheckCanRead(ctx)
	var unknown *versions.UnknownVersionError
	if errors.As(err, &unknown) {
		return userError(err)
	}
	if err != nil {
		return sysError(err)
	}
	if access == current && !c.Current() {
		return userError(fmt.Errorf("store %s has tables at an older schema (%s); run shelf upgrade",
			a.config.StorePath, strings.Join(c.Upgradeable, ", ")))
	}
	return nil
}

func (a *app) ordering() ordering.Strategy {
	s, err := ordering.ParseStrategy(a.config.GetOrdering())
	if err != nil {
		return ordering.Worklist
	}
	return s
}

func (a *app) engine(s *sqlite.Store) *migrate.Engine {
	return migrate.New(s, migrate.Options{
		StagingDir: a.config.GetStagingDir(),
		Ordering:   a.ordering(),
		Logger:     a.log.Named("migrate"),
	})
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return sysError(fmt.Errorf("encode output: %w", err))
	}
	return nil
}

// printRepairs writes one line per cycle repair.
func printRepairs(w io.Writer, repairs []cycles.Repair) {
	for _, r := range repairs {
		fmt.Fprintf(w, "cycle %s: broke %s\n", r.Description(), r.BrokenAt())
	}
}

func logRepairs(log *zap.Logger, repairs []cycles.Repair) {
	if len(repairs) > 0 {
		log.Info("card-set cycles repaired on open", zap.Int("repairs", len(repairs)))
	}
}
