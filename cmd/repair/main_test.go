package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"airwaves/api/internal/repair"
)

func TestListTasks(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-list"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr=%s", code, stderr.String())
	}
	var tasks []repair.Task
	if err := json.Unmarshal(stdout.Bytes(), &tasks); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(tasks) != 5 || tasks[0].Name != repair.TaskLegacyIDs {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
}

func TestUnknownTask(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-task", "nope"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "unknown task") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestRunAgainstMemoryStore(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("REDIS_URL", "")
	t.Setenv("MINIO_ENDPOINT", "")
	t.Setenv("LOG_LEVEL", "error")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-task", repair.TaskMissingFields}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr=%s", code, stderr.String())
	}
	var tallies []repair.Tally
	if err := json.Unmarshal(stdout.Bytes(), &tallies); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(tallies) != 1 || tallies[0].Task != repair.TaskMissingFields || tallies[0].Scanned != 0 {
		t.Fatalf("unexpected tallies %+v", tallies)
	}
}
