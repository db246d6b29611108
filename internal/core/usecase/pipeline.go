package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
	"github.com/dkruglov/exam-ingest/internal/core/ports"
)

// PipelineMetrics receives unit-level instrumentation. Implementations
// must be safe for concurrent use.
type PipelineMetrics interface {
	UnitProcessed(stage domain.Stage, result string)
	StageDuration(stage domain.Stage, seconds float64)
	ExtractionAttempt()
	DuplicateSkipped()
}

type nopMetrics struct{}

func (nopMetrics) UnitProcessed(domain.Stage, string)   {}
func (nopMetrics) StageDuration(domain.Stage, float64)  {}
func (nopMetrics) ExtractionAttempt()                   {}
func (nopMetrics) DuplicateSkipped()                    {}

type PipelineConfig struct {
	RenderWorkers         int
	UploadWorkers         int
	UploadAttempts        int
	UploadRetryBackoff    time.Duration
	ClassifyWorkers       int
	ClassifyBatchSize     int
	ExtractBatchSize      int
	ExtractMaxAttempts    int
	ExtractInitialBackoff time.Duration
	DiagramPageCap        int
}

func (c PipelineConfig) normalized() PipelineConfig {
	out := c
	if out.RenderWorkers <= 0 {
		out.RenderWorkers = 4
	}
	if out.UploadWorkers <= 0 {
		out.UploadWorkers = 4
	}
	if out.UploadAttempts <= 0 {
		out.UploadAttempts = 3
	}
	if out.UploadRetryBackoff <= 0 {
		out.UploadRetryBackoff = 500 * time.Millisecond
	}
	if out.ClassifyWorkers <= 0 {
		out.ClassifyWorkers = 3
	}
	if out.ClassifyBatchSize <= 0 {
		out.ClassifyBatchSize = 8
	}
	if out.ExtractBatchSize <= 0 {
		out.ExtractBatchSize = 4
	}
	if out.ExtractMaxAttempts <= 0 {
		out.ExtractMaxAttempts = 3
	}
	if out.ExtractInitialBackoff <= 0 {
		out.ExtractInitialBackoff = 2 * time.Second
	}
	if out.DiagramPageCap <= 0 {
		out.DiagramPageCap = 2
	}
	return out
}

// Pipeline drives one document through the stage machine
// rendering → uploading → classifying → grouping → extracting → done,
// checkpointing after every unit so a crash resumes at the next
// uncompleted unit, never re-running completed ones.
type Pipeline struct {
	docs        ports.DocumentRepository
	storage     ports.ObjectStorage
	raster      ports.PageRasterizer
	classifier  ports.PageClassifier
	extractor   ports.QuestionExtractor
	checkpoints ports.CheckpointStore
	questions   ports.QuestionRepository
	progress    *ProgressBroadcaster
	metrics     PipelineMetrics
	cfg         PipelineConfig

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(context.Context, time.Duration) error
}

func NewPipeline(
	docs ports.DocumentRepository,
	storage ports.ObjectStorage,
	raster ports.PageRasterizer,
	classifier ports.PageClassifier,
	extractor ports.QuestionExtractor,
	checkpoints ports.CheckpointStore,
	questions ports.QuestionRepository,
	progress *ProgressBroadcaster,
	cfg PipelineConfig,
) *Pipeline {
	if progress == nil {
		progress = NewProgressBroadcaster(0)
	}
	return &Pipeline{
		docs:        docs,
		storage:     storage,
		raster:      raster,
		classifier:  classifier,
		extractor:   extractor,
		checkpoints: checkpoints,
		questions:   questions,
		progress:    progress,
		metrics:     nopMetrics{},
		cfg:         cfg.normalized(),
		sleep:       sleepContext,
	}
}

// SetMetrics installs unit-level instrumentation.
func (p *Pipeline) SetMetrics(m PipelineMetrics) {
	if m != nil {
		p.metrics = m
	}
}

func (p *Pipeline) Run(ctx context.Context, documentID string) error {
	doc, err := p.docs.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}

	cp, err := loadOrCreateCheckpoint(ctx, p.checkpoints, documentID)
	if err != nil {
		return err
	}
	if cp.Stage == domain.StageDone {
		slog.Info("pipeline_already_done", "document_id", documentID)
		return nil
	}
	mgr := newCheckpointManager(p.checkpoints, cp)

	if err := p.docs.UpdateStatus(ctx, doc.ID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	runErr := p.runStages(ctx, doc, mgr)
	switch {
	case runErr == nil && mgr.Stage() == domain.StageDone:
		if err := p.docs.UpdateStatus(ctx, doc.ID, domain.StatusReady, ""); err != nil {
			return fmt.Errorf("set status=ready: %w", err)
		}
		slog.Info("pipeline_done", "document_id", doc.ID)
		return nil
	case runErr == nil:
		// Halted cooperatively by pause or cancel; checkpoint stays
		// consistent and a future run resumes where this one stopped.
		slog.Info("pipeline_halted", "document_id", doc.ID, "stage", mgr.Stage())
		return nil
	default:
		if failErr := p.docs.UpdateStatus(ctx, doc.ID, domain.StatusFailed, runErr.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", runErr, failErr)
		}
		return runErr
	}
}

func (p *Pipeline) runStages(ctx context.Context, doc *domain.SourceDocument, mgr *checkpointManager) error {
	if mgr.Stage() == domain.StagePending {
		if err := mgr.AdvanceStage(ctx, domain.StageRendering); err != nil {
			return err
		}
	}

	for {
		halted, err := mgr.Halted(ctx)
		if err != nil {
			return err
		}
		if halted {
			return nil
		}

		stage := mgr.Stage()
		if stage == domain.StageDone {
			return nil
		}

		started := time.Now()
		var stageErr error
		switch stage {
		case domain.StageRendering:
			stageErr = p.runRenderStage(ctx, doc, mgr)
		case domain.StageUploading:
			stageErr = p.runUploadStage(ctx, doc, mgr)
		case domain.StageClassifying:
			stageErr = p.runClassifyStage(ctx, doc, mgr)
		case domain.StageGrouping:
			stageErr = p.runGroupingStage(ctx, doc, mgr)
		case domain.StageExtracting:
			stageErr = p.runExtractStage(ctx, doc, mgr)
		default:
			stageErr = fmt.Errorf("unknown stage %q", stage)
		}
		p.metrics.StageDuration(stage, time.Since(started).Seconds())
		if stageErr != nil {
			return stageErr
		}

		if !mgr.Snapshot().Settled(stage) {
			// Halted mid-stage; picked up again on resume.
			return nil
		}
		slog.Info("stage_complete", "document_id", doc.ID, "stage", stage)
		if err := mgr.AdvanceStage(ctx, stage.Next()); err != nil {
			return err
		}
	}
}

// forEachUnit runs fn for each pending unit with a bounded worker pool.
// A unit failure is recorded on the unit and never aborts siblings;
// only checkpoint persistence errors and cancellation propagate.
func (p *Pipeline) forEachUnit(
	ctx context.Context,
	mgr *checkpointManager,
	stage domain.Stage,
	units []int,
	workers int,
	fn func(context.Context, int) error,
) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, unit := range units {
		halted, err := mgr.Halted(gctx)
		if err != nil || halted {
			break
		}
		g.Go(func() error {
			if err := fn(gctx, unit); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("unit_failed", "stage", stage, "unit", unit, "error", err)
				p.metrics.UnitProcessed(stage, "failed")
				if failErr := mgr.FailUnit(gctx, stage, unit, err); failErr != nil {
					return failErr
				}
				p.publishProgress(mgr, stage)
				return nil
			}
			if err := mgr.CompleteUnit(gctx, stage, unit); err != nil {
				return err
			}
			p.metrics.UnitProcessed(stage, "ok")
			p.publishProgress(mgr, stage)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) publishProgress(mgr *checkpointManager, stage domain.Stage) {
	cp := mgr.Snapshot()
	p.progress.Publish(domain.ProgressEvent{
		DocumentID:     cp.DocumentID,
		Stage:          stage,
		UnitsCompleted: cp.CompletedSet(stage).Len(),
		UnitsTotal:     cp.Totals[stage],
		LastError:      cp.LastError,
	})
}

func (p *Pipeline) readSource(ctx context.Context, doc *domain.SourceDocument) ([]byte, error) {
	reader, err := p.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDocumentUnreadable, "open source pdf", err)
	}
	defer reader.Close()

	pdf, err := io.ReadAll(reader)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDocumentUnreadable, "read source pdf", err)
	}
	return pdf, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func pageRange(first, last int) []int {
	if last < first {
		return nil
	}
	out := make([]int, 0, last-first+1)
	for p := first; p <= last; p++ {
		out = append(out, p)
	}
	return out
}

func chunkInts(values []int, size int) [][]int {
	if size <= 0 {
		size = 1
	}
	var out [][]int
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		out = append(out, values[start:end])
	}
	return out
}
