package history

import (
	"context"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.Record(ctx, Submission{
		JobID:     "job-1",
		JobName:   "shot010",
		FarmID:    "farm-1",
		QueueID:   "queue-1",
		HipFile:   "/projects/shot010.hip",
		BundleDir: "/bundles/2026-03-14/shot010-abc",
		StepCount: 3,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if first.ID == 0 {
		t.Error("expected assigned id")
	}
	if first.Status != StatusSubmitted {
		t.Errorf("default status = %q", first.Status)
	}

	later := first.SubmittedAt.Add(time.Minute)
	if _, err := store.Record(ctx, Submission{
		JobName:     "shot020",
		FarmID:      "farm-1",
		QueueID:     "queue-1",
		HipFile:     "/projects/shot020.hip",
		Status:      StatusBundled,
		SubmittedAt: later,
	}); err != nil {
		t.Fatalf("second Record failed: %v", err)
	}

	subs, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("got %d submissions", len(subs))
	}
	if subs[0].JobName != "shot020" {
		t.Errorf("newest first ordering broken: %q", subs[0].JobName)
	}
	if subs[1].JobID != "job-1" || subs[1].StepCount != 3 {
		t.Errorf("round trip = %+v", subs[1])
	}

	limited, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("limited List failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit ignored, got %d", len(limited))
	}
}

func TestPrune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, age := range []time.Duration{-72 * time.Hour, -48 * time.Hour, -time.Hour} {
		if _, err := store.Record(ctx, Submission{
			JobName:     "job",
			FarmID:      "farm-1",
			QueueID:     "queue-1",
			HipFile:     "/projects/a.hip",
			SubmittedAt: now.Add(age),
		}); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	deleted, err := store.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	subs, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("remaining = %d", len(subs))
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := store.Record(context.Background(), Submission{
		JobName: "shot010", FarmID: "f", QueueID: "q", HipFile: "/a.hip",
	}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	subs, err := reopened.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("persisted submissions = %d", len(subs))
	}
}
