// Package migrate upgrades a live store to the current schema through a
// disposable staging copy. The live store is only modified once the staging
// copy has been fully built and validated.
//
// An upgrade moves through the states
//
//	Idle -> CheckingVersion -> StagingCopy -> Validating -> Promoting -> Done
//
// and ends in Failed when any phase fails. Only a failure while Promoting can
// leave the live store partially migrated.
package migrate

import (
	"github.com/mesh-intelligence/cardshelf/internal/sqlite"
	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

// Step is one table of a migration plan.
type Step struct {
	Table string
	Copy  sqlite.CopyFunc
	// Progress marks tables large enough to report per-row progress.
	Progress bool
}

// Plan is the ordered list of tables an upgrade copies. Tables referenced by
// others come first.
type Plan []Step

// DefaultPlan returns the plan for this build: lookup tables, then abstract
// cards, physical cards and card sets.
func DefaultPlan() Plan {
	return Plan{
		{Table: types.TableRarity, Copy: sqlite.CopyRarity},
		{Table: types.TableExpansion, Copy: sqlite.CopyExpansion},
		{Table: types.TableCardType, Copy: sqlite.CopyCardType},
		{Table: types.TableRuling, Copy: sqlite.CopyRuling},
		{Table: types.TableArtist, Copy: sqlite.CopyArtist},
		{Table: types.TableKeyword, Copy: sqlite.CopyKeyword},
		{Table: types.TableAbstractCard, Copy: sqlite.CopyAbstractCard, Progress: true},
		{Table: types.TablePhysicalCard, Copy: sqlite.CopyPhysicalCard, Progress: true},
		{Table: types.TableCardSet, Copy: sqlite.CopyCardSet, Progress: true},
	}
}

// Tables returns the plan's table names in order.
func (p Plan) Tables() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = s.Table
	}
	return out
}
