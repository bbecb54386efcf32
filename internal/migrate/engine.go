package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/cardshelf/internal/cycles"
	"github.com/mesh-intelligence/cardshelf/internal/ordering"
	"github.com/mesh-intelligence/cardshelf/internal/sqlite"
	"github.com/mesh-intelligence/cardshelf/internal/versions"
	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

// Options configures an Engine. Zero values select the defaults of this
// build.
type Options struct {
	Registry *versions.Registry
	Plan     Plan
	// StagingDir holds the disposable staging store. It defaults to the
	// directory of the live store.
	StagingDir string
	Ordering   ordering.Strategy
	Logger     *zap.Logger
}

// Engine upgrades one live store. Calls on the same Engine are serialized;
// nothing protects the store against writers outside the process.
type Engine struct {
	mu         sync.Mutex
	live       *sqlite.Store
	registry   *versions.Registry
	plan       Plan
	stagingDir string
	ordering   ordering.Strategy
	log        *zap.Logger

	stateMu sync.RWMutex
	state   State
}

// New returns an engine for live.
func New(live *sqlite.Store, opts Options) *Engine {
	e := &Engine{
		live:       live,
		registry:   opts.Registry,
		plan:       opts.Plan,
		stagingDir: opts.StagingDir,
		ordering:   opts.Ordering,
		log:        opts.Logger,
	}
	if e.registry == nil {
		e.registry = versions.Default()
	}
	if e.plan == nil {
		e.plan = DefaultPlan()
	}
	if e.stagingDir == "" {
		e.stagingDir = filepath.Dir(live.Path())
	}
	if e.ordering == "" {
		e.ordering = ordering.Worklist
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// State returns the phase of the current or most recent upgrade.
func (e *Engine) State() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.stateMu.Lock()
	e.state = s
	e.stateMu.Unlock()
}

// Registry returns the version registry the engine classifies stores with.
func (e *Engine) Registry() *versions.Registry {
	return e.registry
}

// CheckCanRead classifies every plan table of the live store. It returns an
// UnknownVersionError when any table is unknown. It never modifies a store.
func (e *Engine) CheckCanRead(ctx context.Context) (versions.Classification, error) {
	for _, table := range e.plan.Tables() {
		entry, ok := e.registry.Entry(table)
		if !ok {
			return versions.Classification{}, fmt.Errorf("plan table %s has no registry entry", table)
		}
		for _, v := range entry.Versions() {
			if !sqlite.HasDDL(table, v) {
				return versions.Classification{}, fmt.Errorf("registry accepts %s version %d, which has no schema", table, v)
			}
		}
	}
	c, err := e.registry.ClassifyStore(ctx, e.live)
	if err != nil {
		return c, err
	}
	return c, c.Err()
}

// AttemptUpgrade checks the live store, builds and validates a staging copy,
// and promotes it only if every earlier phase succeeded. The staging store is
// always removed. The returned error is nil exactly when report.OK is true;
// when it wraps a PromotionError, report.Warning is set.
func (e *Engine) AttemptUpgrade(ctx context.Context, sink types.ProgressSink) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sink = types.SinkOrNop(sink)
	report := &Report{RunID: uuid.Must(uuid.NewV7()).String()}
	log := e.log.With(zap.String("run_id", report.RunID))

	fail := func(err error) (*Report, error) {
		e.setState(Failed)
		report.State = Failed
		report.addErrors(err)
		log.Error("upgrade failed", zap.Error(err))
		return report, err
	}

	e.setState(CheckingVersion)
	c, err := e.CheckCanRead(ctx)
	report.Classification = c
	if err != nil {
		return fail(err)
	}
	log.Info("store versions checked",
		zap.Strings("compatible", c.Compatible),
		zap.Strings("upgradeable", c.Upgradeable))

	e.setState(StagingCopy)
	staging, steps, err := e.createStagingCopy(ctx, c, sink, log)
	report.Steps = append(report.Steps, steps...)
	if staging != nil {
		defer e.discard(staging, log)
	}
	if err != nil {
		return fail(err)
	}

	e.setState(Validating)
	repairs, err := e.validate(ctx, staging, sink)
	report.StagedCycles = repairs
	if err != nil {
		return fail(err)
	}

	e.setState(Promoting)
	steps, err = e.promote(ctx, staging, sink, log)
	report.Steps = append(report.Steps, steps...)
	if err != nil {
		report.Warning = InconsistentWarning
		return fail(err)
	}

	e.setState(Done)
	report.State = Done
	report.OK = true
	log.Info("upgrade complete", zap.Int("steps", len(report.Steps)))
	return report, nil
}

// CreateStagingCopy builds a staging store holding the upgraded contents of
// the live store. The caller owns the returned store and must remove it with
// Discard. On failure the staging store has already been removed and the
// error accumulates every row and table problem found.
func (e *Engine) CreateStagingCopy(ctx context.Context, sink types.ProgressSink) (*sqlite.Store, []StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.CheckCanRead(ctx)
	if err != nil {
		return nil, nil, err
	}
	staging, steps, err := e.createStagingCopy(ctx, c, types.SinkOrNop(sink), e.log)
	if err != nil {
		if staging != nil {
			e.discard(staging, e.log)
		}
		return nil, steps, err
	}
	return staging, steps, nil
}

// Promote replaces the live store's contents with staging, which must hold
// the current schema.
func (e *Engine) Promote(ctx context.Context, staging *sqlite.Store, sink types.ProgressSink) ([]StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.promote(ctx, staging, types.SinkOrNop(sink), e.log)
}

// Discard closes and removes a staging store.
func (e *Engine) Discard(staging *sqlite.Store) {
	e.discard(staging, e.log)
}

func (e *Engine) createStagingCopy(ctx context.Context, c versions.Classification, sink types.ProgressSink, log *zap.Logger) (*sqlite.Store, []StepResult, error) {
	path := filepath.Join(e.stagingDir, fmt.Sprintf("shelf-staging-%s.db", uuid.Must(uuid.NewV7())))
	staging, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening staging store: %w", err)
	}
	if err := staging.CreateSchema(ctx, e.registry.Current()); err != nil {
		return staging, nil, fmt.Errorf("creating staging schema: %w", err)
	}
	log.Info("staging copy started", zap.String("staging", path))

	total, err := e.progressTotal(ctx, e.live)
	if err != nil {
		return staging, nil, err
	}
	sink.SetTotal(total)

	var errs error
	steps := make([]StepResult, 0, len(e.plan))
	for _, step := range e.plan {
		if err := ctx.Err(); err != nil {
			return staging, steps, err
		}
		version := c.Found[step.Table]
		res, err := e.copyStep(ctx, e.live, staging, step, version, StagingCopy, sink)
		steps = append(steps, res)
		if err != nil {
			log.Warn("staging step failed", zap.String("table", step.Table), zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}
		log.Debug("staged table", zap.String("table", step.Table),
			zap.Int("version", version), zap.Int("rows", res.Rows))
	}
	if errs != nil {
		return staging, steps, fmt.Errorf("%w: %w", ErrStagingFailed, errs)
	}
	return staging, steps, nil
}

// copyStep copies one table from src into dst in a single destination
// transaction. Any row failure rolls the whole table back.
func (e *Engine) copyStep(ctx context.Context, src, dst *sqlite.Store, step Step, version int, phase State, sink types.ProgressSink) (StepResult, error) {
	res := StepResult{Phase: phase, Table: step.Table, SourceVersion: version}

	var rowErrs error
	job := &sqlite.CopyJob{
		Src:      src,
		Version:  version,
		Ordering: e.ordering,
		Fail: func(row string, err error) {
			res.Errors++
			rowErrs = multierr.Append(rowErrs, &RowCopyError{Table: step.Table, Row: row, Err: err})
		},
	}
	if step.Progress {
		job.Progress = sink
	}

	err := dst.WithTx(ctx, func(tx *sql.Tx) error {
		job.Dst = tx
		n, err := step.Copy(ctx, job)
		res.Rows = n
		if err != nil {
			return &StepError{Table: step.Table, Err: err}
		}
		return rowErrs
	})
	if err != nil {
		res.Failed = true
		return res, err
	}
	return res, nil
}

// progressTotal sums the rows of every progress-reporting plan table in s.
func (e *Engine) progressTotal(ctx context.Context, s *sqlite.Store) (int, error) {
	total := 0
	for _, step := range e.plan {
		if !step.Progress {
			continue
		}
		n, err := s.CountRows(ctx, step.Table)
		if err != nil {
			return 0, fmt.Errorf("counting %s: %w", step.Table, err)
		}
		total += int(n)
	}
	return total, nil
}

// validate compares staging with the live store: every SQL table must hold
// the same number of rows, and the staged card sets must be acyclic.
func (e *Engine) validate(ctx context.Context, staging *sqlite.Store, sink types.ProgressSink) ([]cycles.Repair, error) {
	sink.SetTotal(len(e.plan))

	liveCounts, err := e.live.RowCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting live rows: %w", err)
	}
	stagedCounts, err := staging.RowCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting staged rows: %w", err)
	}

	var errs error
	for _, step := range e.plan {
		for _, name := range sqlite.SQLTables(step.Table) {
			if liveCounts[name] != stagedCounts[name] {
				errs = multierr.Append(errs, fmt.Errorf("%s: live has %d rows, staging has %d",
					name, liveCounts[name], stagedCounts[name]))
			}
		}
		sink.Advance(1)
	}

	nodes, err := staging.CardSetNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading staged card sets: %w", err)
	}
	repairs := cycles.Find(nodes)
	for _, r := range repairs {
		errs = multierr.Append(errs, fmt.Errorf("staged card sets contain %s", r))
	}

	if errs != nil {
		return repairs, fmt.Errorf("%w: %w", ErrValidationFailed, errs)
	}
	return nil, nil
}

func (e *Engine) promote(ctx context.Context, staging *sqlite.Store, sink types.ProgressSink, log *zap.Logger) ([]StepResult, error) {
	total, err := e.progressTotal(ctx, staging)
	if err != nil {
		return nil, &PromotionError{Err: err}
	}
	sink.SetTotal(total)

	if err := e.live.Reset(ctx, e.registry.Current()); err != nil {
		return nil, &PromotionError{Err: fmt.Errorf("resetting live store: %w", err)}
	}
	log.Warn("live store reset, promoting staging copy", zap.String("staging", staging.Path()))

	var steps []StepResult
	for _, step := range e.plan {
		entry, _ := e.registry.Entry(step.Table)
		res, err := e.copyStep(ctx, staging, e.live, step, entry.Current, Promoting, sink)
		steps = append(steps, res)
		if err != nil {
			return steps, &PromotionError{Table: step.Table, Err: err}
		}
	}
	return steps, nil
}

func (e *Engine) discard(staging *sqlite.Store, log *zap.Logger) {
	path := staging.Path()
	if err := staging.Close(); err != nil {
		log.Warn("closing staging store", zap.Error(err))
	}
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("removing staging file", zap.String("path", p), zap.Error(err))
		}
	}
}
