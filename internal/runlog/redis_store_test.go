package runlog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"airwaves/api/internal/repair"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRecordAndLast(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if _, err := store.Last(ctx, repair.TaskLegacyIDs); !errors.Is(err, ErrNoRuns) {
		t.Fatalf("expected ErrNoRuns, got %v", err)
	}

	tally := repair.Tally{
		RunID:        "run-1",
		Task:         repair.TaskLegacyIDs,
		Scanned:      12,
		Created:      2,
		ConflictList: []repair.Issue{{ProfileID: "taken", Key: "taken", Reason: "firmly_claimed by acct-1"}},
		StartedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		FinishedAt:   time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
	}
	if err := store.Record(ctx, tally); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	last, err := store.Last(ctx, repair.TaskLegacyIDs)
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if last.RunID != "run-1" || last.Created != 2 || len(last.ConflictList) != 1 {
		t.Errorf("unexpected last run %+v", last)
	}
	if !last.FinishedAt.Equal(tally.FinishedAt) {
		t.Errorf("expected finishedAt %v, got %v", tally.FinishedAt, last.FinishedAt)
	}
}

func TestHistoryIsNewestFirstAndBounded(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()
	store.history = 3

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		if err := store.Record(ctx, repair.Tally{RunID: fmt.Sprintf("run-%d", i), Task: repair.TaskMissingFields}); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	runs, err := store.History(ctx, repair.TaskMissingFields, 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs kept, got %d", len(runs))
	}
	if runs[0].RunID != "run-5" || runs[2].RunID != "run-3" {
		t.Errorf("unexpected order: %s .. %s", runs[0].RunID, runs[2].RunID)
	}

	other, err := store.History(ctx, repair.TaskInstagramHandles, 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no runs for an unrecorded task, got %d", len(other))
	}
}

func TestHookSwallowsErrors(t *testing.T) {
	store, s := setupTestRedis(t)
	hook := store.Hook(zap.NewNop())

	hook(context.Background(), repair.Tally{RunID: "ok", Task: repair.TaskInvalidUsernames})
	if _, err := store.Last(context.Background(), repair.TaskInvalidUsernames); err != nil {
		t.Fatalf("hook did not record: %v", err)
	}

	s.Close()
	hook(context.Background(), repair.Tally{RunID: "lost", Task: repair.TaskInvalidUsernames})
	_ = store.Close()
}
