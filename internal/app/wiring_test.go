package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"airwaves/api/internal/config"
	"airwaves/api/internal/repair"
	"airwaves/api/internal/store"
)

func TestOpenStoreMemory(t *testing.T) {
	s, closeFn, err := OpenStore(context.Background(), config.Config{StoreBackend: config.BackendMemory}, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer closeFn()
	if _, ok := s.(*store.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}
}

func TestOpenStoreRejectsUnknownBackend(t *testing.T) {
	if _, _, err := OpenStore(context.Background(), config.Config{StoreBackend: "mongo"}, zap.NewNop()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestRepairBackendsRecordRuns(t *testing.T) {
	mr := miniredis.RunT(t)
	backends := OpenRepairBackends(context.Background(), config.Config{RedisURL: "redis://" + mr.Addr()}, zap.NewNop())
	defer backends.Close()
	if backends.Runs == nil {
		t.Fatal("expected redis run history")
	}
	if backends.Archive != nil {
		t.Fatal("archive should be disabled without an endpoint")
	}

	mem := store.NewMemoryStore()
	runner := repair.NewRunner(mem, repair.Config{Hooks: backends.Hooks(zap.NewNop())})
	if _, err := runner.Run(context.Background(), repair.TaskInstagramHandles); err != nil {
		t.Fatalf("run: %v", err)
	}

	runs, err := backends.Runs.History(context.Background(), repair.TaskInstagramHandles, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(runs) != 1 || runs[0].Task != repair.TaskInstagramHandles {
		t.Fatalf("expected one recorded run, got %+v", runs)
	}
}

func TestRepairBackendsSkipUnreachableRedis(t *testing.T) {
	backends := OpenRepairBackends(context.Background(), config.Config{RedisURL: "redis://127.0.0.1:1/0"}, zap.NewNop())
	if backends.Runs != nil {
		t.Fatal("expected unreachable redis to be skipped")
	}
	if hooks := backends.Hooks(zap.NewNop()); len(hooks) != 0 {
		t.Fatalf("expected no hooks, got %d", len(hooks))
	}
}
