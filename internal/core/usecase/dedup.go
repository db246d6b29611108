package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkruglov/exam-ingest/internal/core/ports"
)

// Deduplicator keeps the fingerprint set of previously accepted
// questions. It is loaded once per pipeline run and updated
// incrementally as new questions are accepted; InsertIfAbsent results
// reconcile it with storage truth.
type Deduplicator struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	index ports.QuestionRepository
}

func NewDeduplicator(index ports.QuestionRepository) *Deduplicator {
	return &Deduplicator{
		seen:  make(map[string]struct{}),
		index: index,
	}
}

func (d *Deduplicator) Load(ctx context.Context) error {
	fingerprints, err := d.index.ListFingerprints(ctx)
	if err != nil {
		return fmt.Errorf("load fingerprints: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, fp := range fingerprints {
		d.seen[fp] = struct{}{}
	}
	return nil
}

func (d *Deduplicator) IsDuplicate(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[fingerprint]
	return ok
}

func (d *Deduplicator) Register(fingerprint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[fingerprint] = struct{}{}
}
