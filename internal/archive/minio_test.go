package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"airwaves/api/internal/repair"
)

type fakePutter struct {
	bucket   string
	name     string
	body     []byte
	opts     minio.PutObjectOptions
	putErr   error
	putCalls int
}

func (f *fakePutter) PutObject(_ context.Context, bucket, name string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.putCalls++
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.bucket, f.name, f.body, f.opts = bucket, name, body, opts
	return minio.UploadInfo{Bucket: bucket, Key: name, Size: size}, nil
}

func sampleTally() repair.Tally {
	return repair.Tally{
		RunID:     "7d4c",
		Task:      repair.TaskUsernameReservations,
		Created:   3,
		Conflicts: 1,
		ConflictList: []repair.Issue{
			{ProfileID: "taken", Key: "taken", Reason: "firmly_claimed by acct-1"},
		},
		StartedAt:  time.Date(2026, 2, 9, 22, 15, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 2, 9, 22, 15, 2, 0, time.UTC),
	}
}

func TestObjectName(t *testing.T) {
	got := ObjectName(sampleTally())
	want := "repairs/username-reservations/2026/02/09/20260209T221500Z-7d4c.json"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestStoreUploadsJSON(t *testing.T) {
	putter := &fakePutter{}
	a := newArchive(putter, "repair-reports", nil)

	name, err := a.Store(context.Background(), sampleTally())
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if putter.bucket != "repair-reports" || putter.name != name {
		t.Fatalf("unexpected upload target %s/%s", putter.bucket, putter.name)
	}
	if putter.opts.ContentType != "application/json" || putter.opts.UserMetadata["conflicts"] != "1" {
		t.Fatalf("unexpected options %+v", putter.opts)
	}

	var decoded repair.Tally
	if err := json.Unmarshal(putter.body, &decoded); err != nil {
		t.Fatalf("body is not a tally: %v", err)
	}
	if decoded.Created != 3 || len(decoded.ConflictList) != 1 {
		t.Fatalf("unexpected decoded tally %+v", decoded)
	}
}

func TestHookLogsFailures(t *testing.T) {
	putter := &fakePutter{putErr: errors.New("bucket gone")}
	a := newArchive(putter, "repair-reports", nil)

	a.Hook()(context.Background(), sampleTally())
	if putter.putCalls != 1 {
		t.Fatalf("expected one upload attempt, got %d", putter.putCalls)
	}
}
