package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
)

// runExtractStage turns question groups into persisted question
// records. Units are question numbers, so batches can shrink across
// retries without disturbing checkpoint identity.
func (p *Pipeline) runExtractStage(ctx context.Context, doc *domain.SourceDocument, mgr *checkpointManager) error {
	groups := domain.BuildQuestionGroups(p.classificationList(mgr))
	universe := domain.GroupNumbers(groups)
	if err := mgr.EnsureTotal(ctx, domain.StageExtracting, len(universe)); err != nil {
		return err
	}

	dedup := NewDeduplicator(p.questions)
	if err := dedup.Load(ctx); err != nil {
		return err
	}

	pending := mgr.Snapshot().PendingUnits(domain.StageExtracting, universe)
	for _, batch := range chunkInts(pending, p.cfg.ExtractBatchSize) {
		halted, err := mgr.Halted(ctx)
		if err != nil {
			return err
		}
		if halted {
			return nil
		}
		if err := p.extractBatch(ctx, doc, mgr, groups, dedup, batch); err != nil {
			return err
		}
	}

	if failed := mgr.Snapshot().FailedSet(domain.StageExtracting); failed.Len() > 0 {
		return domain.WrapError(domain.ErrExtractionMalformed, "extract stage",
			fmt.Errorf("%d question(s) failed: %v", failed.Len(), failed.Values()))
	}
	return nil
}

// extractBatch drives one batch through up to ExtractMaxAttempts model
// calls. Each retry doubles the wait and halves the call size, which
// isolates the page group that produced an over-long or malformed
// response. Batch size never grows back within a batch.
func (p *Pipeline) extractBatch(
	ctx context.Context,
	doc *domain.SourceDocument,
	mgr *checkpointManager,
	groups map[int]domain.QuestionGroup,
	dedup *Deduplicator,
	batch []int,
) error {
	remaining := batch
	callSize := len(batch)
	backoff := p.cfg.ExtractInitialBackoff
	var lastErr error

	for attempt := 1; attempt <= p.cfg.ExtractMaxAttempts; attempt++ {
		if attempt > 1 {
			if err := mgr.IncrementRetry(ctx, domain.StageExtracting); err != nil {
				return err
			}
			if err := p.sleep(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
			if callSize > 1 {
				callSize = (callSize + 1) / 2
			}
		}

		var failed []int
		for _, chunk := range chunkInts(remaining, callSize) {
			halted, err := mgr.Halted(ctx)
			if err != nil {
				return err
			}
			if halted {
				return nil
			}

			items, err := p.assembleItems(ctx, doc, mgr, groups, chunk)
			if err != nil {
				return err
			}

			p.metrics.ExtractionAttempt()
			records, err := p.extractor.ExtractBatch(ctx, items)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("extract_call_failed",
					"document_id", doc.ID,
					"attempt", attempt,
					"questions", chunk,
					"error", err,
				)
				lastErr = err
				failed = append(failed, chunk...)
				continue
			}

			byNumber := make(map[int]domain.ExtractedQuestion, len(records))
			for _, rec := range records {
				byNumber[rec.QuestionNumber] = rec
			}
			for _, q := range chunk {
				rec, ok := byNumber[q]
				if !ok {
					lastErr = fmt.Errorf("no record returned for question %d", q)
					failed = append(failed, q)
					continue
				}
				if err := p.acceptQuestion(ctx, doc, mgr, dedup, groups[q], rec); err != nil {
					return err
				}
			}
		}

		if len(failed) == 0 {
			return nil
		}
		remaining = failed
	}

	if lastErr == nil {
		lastErr = errors.New("extraction exhausted retries")
	}
	for _, q := range remaining {
		if err := mgr.FailUnit(ctx, domain.StageExtracting, q, lastErr); err != nil {
			return err
		}
		p.metrics.UnitProcessed(domain.StageExtracting, "failed")
	}
	p.publishProgress(mgr, domain.StageExtracting)
	return nil
}

// acceptQuestion validates, fingerprints, deduplicates and persists one
// extracted record. A schema violation rejects the record and moves on;
// it is reported, not retried, because the response itself was sound.
func (p *Pipeline) acceptQuestion(
	ctx context.Context,
	doc *domain.SourceDocument,
	mgr *checkpointManager,
	dedup *Deduplicator,
	group domain.QuestionGroup,
	rec domain.ExtractedQuestion,
) error {
	rec.SourcePages = domain.SourcePages{
		Question:    group.QuestionPages,
		Explanation: group.ExplanationPages,
	}
	if len(group.DiagramPages) > 0 {
		rec.HasImage = true
	}

	if err := rec.Validate(); err != nil {
		slog.Warn("question_rejected",
			"document_id", doc.ID,
			"question", rec.QuestionNumber,
			"error", err,
		)
		p.metrics.UnitProcessed(domain.StageExtracting, "rejected")
		if failErr := mgr.FailUnit(ctx, domain.StageExtracting, rec.QuestionNumber, err); failErr != nil {
			return failErr
		}
		p.publishProgress(mgr, domain.StageExtracting)
		return nil
	}

	rec.ContentFingerprint = domain.Fingerprint(rec.Text)
	if dedup.IsDuplicate(rec.ContentFingerprint) {
		slog.Info("duplicate_skipped",
			"document_id", doc.ID,
			"question", rec.QuestionNumber,
			"fingerprint", rec.ContentFingerprint,
		)
		p.metrics.DuplicateSkipped()
	} else {
		inserted, err := p.questions.InsertIfAbsent(ctx, doc.ID, &rec)
		if err != nil {
			return fmt.Errorf("persist question %d: %w", rec.QuestionNumber, err)
		}
		if !inserted {
			// Storage already had the fingerprint; reconcile the cache.
			slog.Info("duplicate_skipped",
				"document_id", doc.ID,
				"question", rec.QuestionNumber,
				"fingerprint", rec.ContentFingerprint,
			)
			p.metrics.DuplicateSkipped()
		}
		dedup.Register(rec.ContentFingerprint)
	}

	if err := mgr.CompleteUnit(ctx, domain.StageExtracting, rec.QuestionNumber); err != nil {
		return err
	}
	p.metrics.UnitProcessed(domain.StageExtracting, "ok")
	p.publishProgress(mgr, domain.StageExtracting)
	return nil
}

// assembleItems gathers each group's page images: question pages, then
// explanation pages, then at most DiagramPageCap diagram pages, with
// shared pages sent once. Pages that never rendered are skipped.
func (p *Pipeline) assembleItems(
	ctx context.Context,
	doc *domain.SourceDocument,
	mgr *checkpointManager,
	groups map[int]domain.QuestionGroup,
	questionNumbers []int,
) ([]domain.ExtractionItem, error) {
	uploaded := mgr.Snapshot().CompletedSet(domain.StageUploading)

	items := make([]domain.ExtractionItem, 0, len(questionNumbers))
	for _, q := range questionNumbers {
		group := groups[q]

		pages := make([]int, 0, len(group.QuestionPages)+len(group.ExplanationPages)+p.cfg.DiagramPageCap)
		pages = append(pages, group.QuestionPages...)
		pages = append(pages, group.ExplanationPages...)
		diagrams := group.DiagramPages
		if len(diagrams) > p.cfg.DiagramPageCap {
			diagrams = diagrams[:p.cfg.DiagramPageCap]
		}
		pages = append(pages, diagrams...)

		item := domain.ExtractionItem{Group: group}
		seen := make(map[int]struct{}, len(pages))
		for _, page := range pages {
			if _, ok := seen[page]; ok {
				continue
			}
			seen[page] = struct{}{}
			if !uploaded.Has(page) {
				continue
			}
			png, err := p.storage.Get(ctx, domain.PageKey(doc.ID, page))
			if err != nil {
				return nil, fmt.Errorf("fetch page %d image: %w", page, err)
			}
			item.Pages = append(item.Pages, domain.PageImageData{PageNumber: page, PNG: png})
		}
		items = append(items, item)
	}
	return items, nil
}
