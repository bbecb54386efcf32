package migrate

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mesh-intelligence/cardshelf/internal/ordering"
	"github.com/mesh-intelligence/cardshelf/internal/sqlite"
	"github.com/mesh-intelligence/cardshelf/internal/sqlite/sqlitetest"
	"github.com/mesh-intelligence/cardshelf/internal/versions"
	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

type recordingSink struct {
	totals   []int
	advanced int
	infos    []string
}

func (s *recordingSink) SetTotal(n int)  { s.totals = append(s.totals, n) }
func (s *recordingSink) Advance(n int)   { s.advanced += n }
func (s *recordingSink) Info(msg string) { s.infos = append(s.infos, msg) }

func newEngine(t *testing.T, live *sqlite.Store, opts Options) (*Engine, string) {
	t.Helper()
	if opts.StagingDir == "" {
		opts.StagingDir = t.TempDir()
	}
	opts.Logger = zaptest.NewLogger(t)
	return New(live, opts), opts.StagingDir
}

func assertNoStagingFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging artifacts left in %s", dir)
}

func TestAttemptUpgrade_LegacyStore(t *testing.T) {
	ctx := context.Background()

	for _, strategy := range []ordering.Strategy{ordering.Worklist, ordering.Topological} {
		t.Run(string(strategy), func(t *testing.T) {
			live := sqlitetest.NewLegacyStore(t)
			before := sqlitetest.RowCounts(t, live)
			links := sqlitetest.ParentLinks(t, live)

			e, dir := newEngine(t, live, Options{Ordering: strategy})
			report, err := e.AttemptUpgrade(ctx, nil)
			require.NoError(t, err)
			assert.True(t, report.OK)
			assert.Equal(t, Done, report.State)
			assert.Equal(t, Done, e.State())
			assert.NotEmpty(t, report.RunID)
			assert.Empty(t, report.Warning)
			assert.Len(t, report.Classification.Upgradeable, 7)
			assert.Equal(t, []string{types.TableArtist, types.TableKeyword}, report.Classification.Compatible)

			got, err := live.TableVersions(ctx)
			require.NoError(t, err)
			assert.Equal(t, sqlite.CurrentVersions, got)
			assert.Equal(t, before, sqlitetest.RowCounts(t, live))
			assert.Equal(t, links, sqlitetest.ParentLinks(t, live))
			assertNoStagingFiles(t, dir)

			// Each plan table shows up once per phase.
			require.Len(t, report.Steps, 2*len(DefaultPlan()))
			assert.Equal(t, 6, report.Steps[8].SourceVersion)
			assert.Equal(t, 7, report.Steps[17].SourceVersion)
			assert.Empty(t, report.FailedTables())
		})
	}
}

func TestAttemptUpgrade_ChainKeepsParentLinks(t *testing.T) {
	ctx := context.Background()
	live := sqlitetest.NewStoreWithVersions(t, sqlite.CurrentVersions)
	_, err := live.DB().ExecContext(ctx, `
		INSERT INTO card_set (id, name, parent_id) VALUES
			(10, 'C', 20),
			(20, 'B', 30),
			(30, 'A', NULL)`)
	require.NoError(t, err)

	e, _ := newEngine(t, live, Options{})
	report, err := e.AttemptUpgrade(ctx, nil)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, map[string]string{"A": "", "B": "A", "C": "B"}, sqlitetest.ParentLinks(t, live))
}

func TestAttemptUpgrade_IdempotentOnCurrentStore(t *testing.T) {
	ctx := context.Background()
	live := sqlitetest.NewStore(t)
	sqlitetest.SeedCurrent(t, live)
	before := sqlitetest.RowCounts(t, live)
	links := sqlitetest.ParentLinks(t, live)

	e, _ := newEngine(t, live, Options{})
	for i := 0; i < 3; i++ {
		report, err := e.AttemptUpgrade(ctx, nil)
		require.NoError(t, err, "attempt %d", i)
		assert.True(t, report.OK)
		assert.True(t, report.Classification.Current())
		assert.Equal(t, before, sqlitetest.RowCounts(t, live))
		assert.Equal(t, links, sqlitetest.ParentLinks(t, live))
	}

	root, err := live.CardSetByName(ctx, "Root")
	require.NoError(t, err)
	assert.Equal(t, "top level", root.Annotations)
	require.Len(t, root.Members, 3)
	assert.Equal(t, "Jyhad", root.Members[0].Expansion)
}

func TestAttemptUpgrade_FailedStagingLeavesLiveUntouched(t *testing.T) {
	ctx := context.Background()
	live := sqlitetest.NewLegacyStore(t)
	_, err := live.DB().ExecContext(ctx,
		"INSERT INTO physical_card (id, abstract_card_id) VALUES (9, 42), (10, 43)")
	require.NoError(t, err)
	before := sqlitetest.RowCounts(t, live)
	beforeVersions, err := live.TableVersions(ctx)
	require.NoError(t, err)

	e, dir := newEngine(t, live, Options{})
	report, err := e.AttemptUpgrade(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStagingFailed)
	assert.False(t, report.OK)
	assert.Equal(t, Failed, report.State)
	assert.Empty(t, report.Warning)

	var rowErr *RowCopyError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, types.TablePhysicalCard, rowErr.Table)
	assert.ErrorIs(t, rowErr, types.ErrLookupFailed)

	// Physical cards roll back as a whole, so the card-set step still runs
	// and reports every set whose members or parent are now missing.
	assert.Equal(t, []string{types.TablePhysicalCard, types.TableCardSet}, report.FailedTables())
	require.Len(t, report.Steps, len(DefaultPlan()))
	assert.Equal(t, 2, report.Steps[7].Errors)
	assert.Equal(t, 3, report.Steps[8].Errors)
	assert.False(t, report.Steps[6].Failed)
	// The sentinel plus one message per failed row.
	assert.Len(t, report.Messages, 6)

	assert.Equal(t, before, sqlitetest.RowCounts(t, live))
	afterVersions, err := live.TableVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, beforeVersions, afterVersions)
	assertNoStagingFiles(t, dir)
}

func TestAttemptUpgrade_UnknownVersion(t *testing.T) {
	ctx := context.Background()
	live := sqlitetest.NewStore(t)
	sqlitetest.SeedCurrent(t, live)
	_, err := live.DB().ExecContext(ctx,
		"UPDATE table_versions SET version = 99 WHERE table_name = ?", types.TableAbstractCard)
	require.NoError(t, err)
	before := sqlitetest.RowCounts(t, live)

	e, dir := newEngine(t, live, Options{})

	c, err := e.CheckCanRead(ctx)
	var unknown *versions.UnknownVersionError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{types.TableAbstractCard}, unknown.Tables)
	assert.Equal(t, []string{types.TableAbstractCard}, c.Unknown)

	sink := &recordingSink{}
	report, err := e.AttemptUpgrade(ctx, sink)
	require.ErrorAs(t, err, &unknown)
	assert.False(t, report.OK)
	assert.Equal(t, Failed, e.State())
	assert.Empty(t, report.Steps)
	assert.Empty(t, sink.totals, "no phase started")
	assert.Equal(t, before, sqlitetest.RowCounts(t, live))
	assertNoStagingFiles(t, dir)
}

func TestCheckCanRead_RejectsRegistryWithoutSchema(t *testing.T) {
	ctx := context.Background()
	live := sqlitetest.NewStore(t)
	before := sqlitetest.RowCounts(t, live)

	registry := versions.Default().Register(types.TableCardSet, 8, 7)
	e, dir := newEngine(t, live, Options{Registry: registry})
	assert.Same(t, registry, e.Registry())

	_, err := e.CheckCanRead(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CardSet version 8")

	report, err := e.AttemptUpgrade(ctx, nil)
	require.Error(t, err)
	assert.False(t, report.OK)
	assert.Empty(t, report.Steps)
	assert.Equal(t, before, sqlitetest.RowCounts(t, live))
	assertNoStagingFiles(t, dir)
}

func TestAttemptUpgrade_CycleInLiveStoreFailsStaging(t *testing.T) {
	ctx := context.Background()
	live := sqlitetest.NewLegacyStore(t)
	_, err := live.DB().ExecContext(ctx, "UPDATE card_set SET parent_id = 1 WHERE id = 3")
	require.NoError(t, err)

	e, dir := newEngine(t, live, Options{})
	report, err := e.AttemptUpgrade(ctx, nil)
	require.Error(t, err)

	var cycleErr *ordering.DependencyCycleError
	require.ErrorAs(t, err, &cycleErr)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, types.TableCardSet, stepErr.Table)
	assert.Equal(t, []string{types.TableCardSet}, report.FailedTables())
	assertNoStagingFiles(t, dir)
}

func TestAttemptUpgrade_PromotionFailureWarns(t *testing.T) {
	ctx := context.Background()
	live := sqlitetest.NewLegacyStore(t)

	boom := errors.New("disk on fire")
	plan := DefaultPlan()
	for i := range plan {
		if plan[i].Table != types.TableCardSet {
			continue
		}
		plan[i].Copy = func(ctx context.Context, job *sqlite.CopyJob) (int, error) {
			if job.Src != live {
				return 0, boom
			}
			return sqlite.CopyCardSet(ctx, job)
		}
	}

	e, dir := newEngine(t, live, Options{Plan: plan})
	report, err := e.AttemptUpgrade(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var promoteErr *PromotionError
	require.ErrorAs(t, err, &promoteErr)
	assert.Equal(t, types.TableCardSet, promoteErr.Table)
	assert.Contains(t, err.Error(), InconsistentWarning)
	assert.Equal(t, InconsistentWarning, report.Warning)
	assert.False(t, report.OK)
	assertNoStagingFiles(t, dir)

	// Tables before the failure were promoted; card sets are empty.
	counts := sqlitetest.RowCounts(t, live)
	assert.Equal(t, int64(3), counts["physical_card"])
	assert.Zero(t, counts["card_set"])
}

func TestAttemptUpgrade_ReportsProgressPerPhase(t *testing.T) {
	ctx := context.Background()
	live := sqlitetest.NewLegacyStore(t)

	e, _ := newEngine(t, live, Options{})
	sink := &recordingSink{}
	_, err := e.AttemptUpgrade(ctx, sink)
	require.NoError(t, err)

	// 2 abstract cards, 3 physical cards and 3 card sets per copy phase, and
	// one unit per plan table while validating.
	assert.Equal(t, []int{8, len(DefaultPlan()), 8}, sink.totals)
	assert.Equal(t, 8+len(DefaultPlan())+8, sink.advanced)
}

func TestCreateStagingCopyAndPromote(t *testing.T) {
	ctx := context.Background()
	live := sqlitetest.NewLegacyStore(t)
	before := sqlitetest.RowCounts(t, live)

	e, dir := newEngine(t, live, Options{})
	staging, steps, err := e.CreateStagingCopy(ctx, nil)
	require.NoError(t, err)
	require.Len(t, steps, len(DefaultPlan()))
	assert.Equal(t, before, sqlitetest.RowCounts(t, staging))

	stagedVersions, err := staging.TableVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, sqlite.CurrentVersions, stagedVersions)

	// Staging alone never touches the live store.
	liveVersions, err := live.TableVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, sqlitetest.LegacyVersions, liveVersions)

	_, err = e.Promote(ctx, staging, nil)
	require.NoError(t, err)
	assert.Equal(t, before, sqlitetest.RowCounts(t, live))
	assert.Equal(t, map[string]string{"Root": "", "Middle": "Root", "Leaf": "Middle"}, sqlitetest.ParentLinks(t, live))

	e.Discard(staging)
	assertNoStagingFiles(t, dir)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "checking-version", CheckingVersion.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", State(42).String())

	text, err := Promoting.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "promoting", string(text))
}
