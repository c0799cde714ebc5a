// Package repair holds the registry reconciliation tasks. Each task scans
// every pending profile, recomputes what the document should look like from
// the username derivation rule, and writes only what differs. Tasks are
// safe to re-run and converge to the same store in any order.
package repair

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"airwaves/api/internal/store"
)

var ErrUnknownTask = errors.New("unknown repair task")

// Hook observes every finished run.
type Hook func(ctx context.Context, tally Tally)

type Config struct {
	PageSize int
	Batch    store.BatchConfig
	Logger   *zap.Logger
	Now      func() time.Time
	Hooks    []Hook
}

type Runner struct {
	store    store.Store
	pageSize int
	batch    store.BatchConfig
	logger   *zap.Logger
	now      func() time.Time
	hooks    []Hook
}

func NewRunner(s store.Store, cfg Config) *Runner {
	r := &Runner{
		store:    s,
		pageSize: cfg.PageSize,
		batch:    cfg.Batch,
		logger:   cfg.Logger,
		now:      cfg.Now,
		hooks:    cfg.Hooks,
	}
	if r.pageSize <= 0 {
		r.pageSize = 200
	}
	if r.batch.MaxWrites == 0 {
		r.batch = store.DefaultBatchConfig()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	return r
}

// OnComplete registers a hook called after every run, failed or not.
func (r *Runner) OnComplete(h Hook) {
	r.hooks = append(r.hooks, h)
}

// Run executes one task by name.
func (r *Runner) Run(ctx context.Context, name string) (Tally, error) {
	task, ok := Lookup(name)
	if !ok {
		return Tally{}, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return r.run(ctx, task)
}

// RunAll executes the whole catalog in its fixed order. A task whose scan
// fails stops the pipeline; tallies of the tasks that ran are returned.
func (r *Runner) RunAll(ctx context.Context) ([]Tally, error) {
	tasks := Tasks()
	tallies := make([]Tally, 0, len(tasks))
	for _, task := range tasks {
		tally, err := r.run(ctx, task)
		tallies = append(tallies, tally)
		if err != nil {
			return tallies, err
		}
	}
	return tallies, nil
}

func (r *Runner) run(ctx context.Context, task Task) (Tally, error) {
	tally := Tally{
		RunID:        uuid.NewString(),
		Task:         task.Name,
		ConflictList: []Issue{},
		ErrorList:    []Issue{},
		StartedAt:    r.now(),
	}
	r.logger.Info("repair started", zap.String("task", task.Name), zap.String("run_id", tally.RunID))

	err := task.run(ctx, r, &tally)
	tally.FinishedAt = r.now()
	if err != nil {
		r.logger.Error("repair aborted", append(tally.fields(), zap.Error(err))...)
		err = fmt.Errorf("%s: %w", task.Name, err)
	} else {
		r.logger.Info("repair finished", tally.fields()...)
	}

	for _, hook := range r.hooks {
		hook(ctx, tally)
	}
	return tally, err
}

// scan pages through pending profiles in id order. An empty status visits
// every profile. Only a failing page query aborts the scan.
func (r *Runner) scan(ctx context.Context, status string, tally *Tally, visit func(store.PendingProfile)) error {
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var (
			page []store.PendingProfile
			err  error
		)
		if status == "" {
			page, err = r.store.ListPendingProfiles(ctx, after, r.pageSize)
		} else {
			page, err = r.store.ListPendingProfilesByStatus(ctx, status, after, r.pageSize)
		}
		if err != nil {
			return fmt.Errorf("scan pending profiles after %q: %w", after, err)
		}
		for _, profile := range page {
			tally.Scanned++
			visit(profile)
		}
		if len(page) < r.pageSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

// mutateProfile re-reads a profile in a transaction and writes it back when
// mutate reports a change.
func (r *Runner) mutateProfile(ctx context.Context, id string, mutate func(*store.PendingProfile) bool) (bool, error) {
	changed := false
	err := r.store.RunInTx(ctx, func(tx store.Tx) error {
		profile, err := tx.GetPendingProfile(ctx, id)
		if err != nil {
			return err
		}
		changed = mutate(&profile)
		if !changed {
			return nil
		}
		return tx.PutPendingProfile(ctx, profile)
	})
	return changed, err
}

func (r *Runner) reportConflict(tally *Tally, profileID, key, reason string) {
	tally.conflict(profileID, key, reason)
	r.logger.Warn("repair conflict",
		zap.String("task", tally.Task),
		zap.String("profile_id", profileID),
		zap.String("key", key),
		zap.String("reason", reason),
	)
}

func (r *Runner) reportError(tally *Tally, profileID, key, format string, args ...any) {
	tally.fail(profileID, key, format, args...)
	r.logger.Warn("repair document failed",
		zap.String("task", tally.Task),
		zap.String("profile_id", profileID),
		zap.String("key", key),
		zap.String("reason", tally.ErrorList[len(tally.ErrorList)-1].Reason),
	)
}
