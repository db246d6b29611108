package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
)

func newTestManager(t *testing.T) (*checkpointManager, *memCheckpoints) {
	t.Helper()
	store := newMemCheckpoints()
	cp, err := loadOrCreateCheckpoint(context.Background(), store, "doc-1")
	if err != nil {
		t.Fatalf("create checkpoint: %v", err)
	}
	return newCheckpointManager(store, cp), store
}

func TestSnapshotIsIsolatedFromLaterWrites(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	if err := mgr.CompleteUnit(ctx, domain.StageRendering, 1); err != nil {
		t.Fatalf("complete unit: %v", err)
	}
	snap := mgr.Snapshot()

	if err := mgr.CompleteUnit(ctx, domain.StageRendering, 2); err != nil {
		t.Fatalf("complete unit: %v", err)
	}
	if err := mgr.CompleteClassification(ctx, domain.PageClassification{PageNumber: 1, PageType: domain.PageQuestion}); err != nil {
		t.Fatalf("complete classification: %v", err)
	}

	if snap.CompletedSet(domain.StageRendering).Has(2) {
		t.Fatalf("snapshot observed a write made after it was taken")
	}
	if len(snap.Classifications) != 0 {
		t.Fatalf("snapshot shares the classifications map")
	}

	// Reading through the snapshot must never touch the live state.
	snap.CompletedSet(domain.StageExtracting).Add(99)
	if mgr.Snapshot().CompletedSet(domain.StageExtracting).Has(99) {
		t.Fatalf("snapshot write reached the manager's checkpoint")
	}
}

func TestSnapshotSafeUnderConcurrentCompletion(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	if err := mgr.EnsureTotal(ctx, domain.StageRendering, 64); err != nil {
		t.Fatalf("ensure total: %v", err)
	}

	var wg sync.WaitGroup
	for unit := 1; unit <= 64; unit++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mgr.CompleteUnit(ctx, domain.StageRendering, unit); err != nil {
				t.Errorf("complete unit %d: %v", unit, err)
				return
			}
			cp := mgr.Snapshot()
			// Mirrors the progress publisher: count reads happen on the
			// snapshot while sibling workers keep completing units.
			if done := cp.CompletedSet(domain.StageRendering).Len(); done < 1 || done > cp.Totals[domain.StageRendering] {
				t.Errorf("inconsistent snapshot: %d done of %d", done, cp.Totals[domain.StageRendering])
			}
		}()
	}
	wg.Wait()

	if got := mgr.Snapshot().CompletedSet(domain.StageRendering).Len(); got != 64 {
		t.Fatalf("completed units = %d, want 64", got)
	}
	if !mgr.Snapshot().Settled(domain.StageRendering) {
		t.Fatalf("stage should settle once every unit is complete")
	}
}
