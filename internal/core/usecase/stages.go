package usecase

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
)

// runRenderStage rasterizes pending pages into the scratch area of the
// blob store. A corrupt page fails only itself; the rest keep rendering.
func (p *Pipeline) runRenderStage(ctx context.Context, doc *domain.SourceDocument, mgr *checkpointManager) error {
	pdf, err := p.readSource(ctx, doc)
	if err != nil {
		return err
	}

	rd, err := p.raster.Open(ctx, pdf)
	if err != nil {
		return err
	}
	defer rd.Close()

	total := rd.PageCount()
	if doc.PageCount != total {
		if err := p.docs.SetPageCount(ctx, doc.ID, total); err != nil {
			return err
		}
		doc.PageCount = total
	}
	if err := mgr.EnsureTotal(ctx, domain.StageRendering, total); err != nil {
		return err
	}

	pending := mgr.Snapshot().PendingUnits(domain.StageRendering, pageRange(1, total))
	return p.forEachUnit(ctx, mgr, domain.StageRendering, pending, p.cfg.RenderWorkers, func(ctx context.Context, page int) error {
		png, err := rd.RenderPage(ctx, page)
		if err != nil {
			return err
		}
		if _, err := p.storage.Put(ctx, domain.ScratchKey(doc.ID, page), png, "image/png"); err != nil {
			return domain.WrapError(domain.ErrPageRenderFailed, "store rendered page", err)
		}
		return nil
	})
}

// runUploadStage moves rendered scratch images to their durable page
// keys. Put is idempotent, so replaying an interrupted upload is a
// no-op that returns the same locator. Transient store errors are
// retried here; the store itself does a single attempt.
func (p *Pipeline) runUploadStage(ctx context.Context, doc *domain.SourceDocument, mgr *checkpointManager) error {
	rendered := mgr.Snapshot().CompletedSet(domain.StageRendering).Values()
	if err := mgr.EnsureTotal(ctx, domain.StageUploading, len(rendered)); err != nil {
		return err
	}

	pending := mgr.Snapshot().PendingUnits(domain.StageUploading, rendered)
	return p.forEachUnit(ctx, mgr, domain.StageUploading, pending, p.cfg.UploadWorkers, func(ctx context.Context, page int) error {
		data, err := p.storage.Get(ctx, domain.ScratchKey(doc.ID, page))
		if err != nil {
			return domain.WrapError(domain.ErrUploadFailed, "read scratch page", err)
		}

		var lastErr error
		for attempt := 1; attempt <= p.cfg.UploadAttempts; attempt++ {
			if _, lastErr = p.storage.Put(ctx, domain.PageKey(doc.ID, page), data, "image/png"); lastErr == nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := p.sleep(ctx, p.cfg.UploadRetryBackoff); err != nil {
				return err
			}
		}
		return domain.WrapError(domain.ErrUploadFailed, "put page image", lastErr)
	})
}

// runClassifyStage labels uploaded pages in bounded batches with a
// bounded worker pool. Classifier failures degrade into zero-confidence
// "unknown page" labels instead of failing the document.
func (p *Pipeline) runClassifyStage(ctx context.Context, doc *domain.SourceDocument, mgr *checkpointManager) error {
	uploaded := mgr.Snapshot().CompletedSet(domain.StageUploading).Values()
	if err := mgr.EnsureTotal(ctx, domain.StageClassifying, len(uploaded)); err != nil {
		return err
	}

	pending := mgr.Snapshot().PendingUnits(domain.StageClassifying, uploaded)
	for _, batch := range chunkInts(pending, p.cfg.ClassifyBatchSize) {
		halted, err := mgr.Halted(ctx)
		if err != nil {
			return err
		}
		if halted {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.cfg.ClassifyWorkers)
		for _, page := range batch {
			g.Go(func() error {
				cls, err := p.classifyPage(gctx, doc, page)
				if err != nil {
					return err
				}
				if err := mgr.CompleteClassification(gctx, cls); err != nil {
					return err
				}
				p.publishProgress(mgr, domain.StageClassifying)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) classifyPage(ctx context.Context, doc *domain.SourceDocument, page int) (domain.PageClassification, error) {
	image, err := p.storage.Get(ctx, domain.PageKey(doc.ID, page))
	if err != nil {
		if ctx.Err() != nil {
			return domain.PageClassification{}, ctx.Err()
		}
		slog.Warn("classification_degraded", "document_id", doc.ID, "page", page, "error", err)
		p.metrics.UnitProcessed(domain.StageClassifying, "degraded")
		return domain.DegradedClassification(page), nil
	}

	cls, err := p.classifier.ClassifyPage(ctx, page, image)
	if err != nil {
		if ctx.Err() != nil {
			return domain.PageClassification{}, ctx.Err()
		}
		slog.Warn("classification_degraded", "document_id", doc.ID, "page", page, "error", err)
		p.metrics.UnitProcessed(domain.StageClassifying, "degraded")
		return domain.DegradedClassification(page), nil
	}

	cls.PageNumber = page
	p.metrics.UnitProcessed(domain.StageClassifying, "ok")
	return cls.Normalized(), nil
}

// runGroupingStage derives question groups from the classification
// result set. Pure computation, so the stage is a single unit that is
// trivially retryable.
func (p *Pipeline) runGroupingStage(ctx context.Context, doc *domain.SourceDocument, mgr *checkpointManager) error {
	if err := mgr.EnsureTotal(ctx, domain.StageGrouping, 1); err != nil {
		return err
	}

	groups := domain.BuildQuestionGroups(p.classificationList(mgr))
	lowConfidence := 0
	for _, g := range groups {
		if g.LowConfidence() {
			lowConfidence++
		}
	}
	slog.Info("groups_formed",
		"document_id", doc.ID,
		"groups", len(groups),
		"low_confidence", lowConfidence,
	)
	if doc.ExpectedQuestions > 0 && len(groups) != doc.ExpectedQuestions {
		// Sanity hint only, never an enforced bound.
		slog.Warn("group_count_mismatch",
			"document_id", doc.ID,
			"groups", len(groups),
			"expected", doc.ExpectedQuestions,
		)
	}

	if err := mgr.CompleteUnit(ctx, domain.StageGrouping, 1); err != nil {
		return err
	}
	p.metrics.UnitProcessed(domain.StageGrouping, "ok")
	p.publishProgress(mgr, domain.StageGrouping)
	return nil
}

func (p *Pipeline) classificationList(mgr *checkpointManager) []domain.PageClassification {
	cp := mgr.Snapshot()
	pages := make([]int, 0, len(cp.Classifications))
	for page := range cp.Classifications {
		pages = append(pages, page)
	}
	sort.Ints(pages)

	out := make([]domain.PageClassification, 0, len(pages))
	for _, page := range pages {
		out = append(out, cp.Classifications[page])
	}
	return out
}
