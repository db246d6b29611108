package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
	"github.com/dkruglov/exam-ingest/internal/core/ports"
)

// checkpointManager is the single-writer funnel for checkpoint updates.
// Stage workers never read-modify-write the checkpoint directly; every
// mutation goes through the mutex here and is persisted before the
// method returns, so a crash between units loses at most in-flight work.
type checkpointManager struct {
	mu    sync.Mutex
	store ports.CheckpointStore
	cp    *domain.Checkpoint
}

func newCheckpointManager(store ports.CheckpointStore, cp *domain.Checkpoint) *checkpointManager {
	return &checkpointManager{store: store, cp: cp}
}

// loadOrCreateCheckpoint fetches the document's checkpoint or starts a
// fresh one at the pending stage.
func loadOrCreateCheckpoint(ctx context.Context, store ports.CheckpointStore, documentID string) (*domain.Checkpoint, error) {
	cp, err := store.Load(ctx, documentID)
	if err == nil {
		return cp, nil
	}
	if !domain.IsKind(err, domain.ErrCheckpointNotFound) {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	cp = domain.NewCheckpoint(documentID)
	if err := store.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}
	return cp, nil
}

func (m *checkpointManager) save(ctx context.Context) error {
	// Control flags belong to the operator, not the run: re-read them
	// so a concurrent pause or cancel is never clobbered by a unit save.
	if stored, err := m.store.Load(ctx, m.cp.DocumentID); err == nil {
		m.cp.Paused = stored.Paused
		m.cp.CancelRequested = stored.CancelRequested
	}
	m.cp.UpdatedAt = time.Now().UTC()
	if err := m.store.Save(ctx, m.cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy so callers can read stage sets without
// holding the lock while sibling workers keep mutating the original.
func (m *checkpointManager) Snapshot() *domain.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cp.Clone()
}

func (m *checkpointManager) Stage() domain.Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cp.Stage
}

func (m *checkpointManager) EnsureTotal(ctx context.Context, stage domain.Stage, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.cp.Totals[stage]; ok && current == total {
		return nil
	}
	m.cp.Totals[stage] = total
	return m.save(ctx)
}

func (m *checkpointManager) IsUnitDone(stage domain.Stage, unit int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cp.CompletedSet(stage).Has(unit)
}

func (m *checkpointManager) CompleteUnit(ctx context.Context, stage domain.Stage, unit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp.CompletedSet(stage).Add(unit)
	m.cp.FailedSet(stage).Remove(unit)
	return m.save(ctx)
}

func (m *checkpointManager) FailUnit(ctx context.Context, stage domain.Stage, unit int, unitErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp.FailedSet(stage).Add(unit)
	if unitErr != nil {
		m.cp.LastError = unitErr.Error()
		if raw, ok := domain.RawResponse(unitErr); ok {
			m.cp.LastRawResponse = raw
		}
	}
	return m.save(ctx)
}

// CompleteClassification records a page's classification result and its
// unit completion in one durable write.
func (m *checkpointManager) CompleteClassification(ctx context.Context, cls domain.PageClassification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp.Classifications[cls.PageNumber] = cls
	m.cp.CompletedSet(domain.StageClassifying).Add(cls.PageNumber)
	return m.save(ctx)
}

func (m *checkpointManager) IncrementRetry(ctx context.Context, stage domain.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp.RetryCounters[stage]++
	return m.save(ctx)
}

func (m *checkpointManager) AdvanceStage(ctx context.Context, next domain.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp.Stage = next
	return m.save(ctx)
}

func (m *checkpointManager) SetLastError(ctx context.Context, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp.LastError = message
	return m.save(ctx)
}

// Halted re-reads the operator control flags from the store. It is
// called between units of work, which is what makes pause and cancel
// cooperative rather than preemptive.
func (m *checkpointManager) Halted(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored, err := m.store.Load(ctx, m.cp.DocumentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrCheckpointNotFound) {
			// Progress was discarded out from under the run.
			return true, nil
		}
		return false, fmt.Errorf("refresh control flags: %w", err)
	}
	m.cp.Paused = stored.Paused
	m.cp.CancelRequested = stored.CancelRequested
	return m.cp.Paused || m.cp.CancelRequested, nil
}
