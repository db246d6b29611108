package usecase

import (
	"context"
	"fmt"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
	"github.com/dkruglov/exam-ingest/internal/core/ports"
)

// ControlUseCase implements the operator controls and the progress read
// model on top of the checkpoint store.
type ControlUseCase struct {
	repo        ports.DocumentRepository
	checkpoints ports.CheckpointStore
	queue       ports.MessageQueue
	questions   ports.QuestionReader
}

func NewControlUseCase(
	repo ports.DocumentRepository,
	checkpoints ports.CheckpointStore,
	queue ports.MessageQueue,
	questions ports.QuestionReader,
) *ControlUseCase {
	return &ControlUseCase{
		repo:        repo,
		checkpoints: checkpoints,
		queue:       queue,
		questions:   questions,
	}
}

func (uc *ControlUseCase) GetByID(ctx context.Context, id string) (*domain.SourceDocument, error) {
	return uc.repo.GetByID(ctx, id)
}

// ListQuestions returns the stored questions for one document. The
// document must exist even when it has no questions yet.
func (uc *ControlUseCase) ListQuestions(ctx context.Context, id string) ([]*domain.ExtractedQuestion, error) {
	if _, err := uc.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return uc.questions.ListByDocument(ctx, id)
}

// Status assembles the user-visible pipeline report: pages rendered and
// uploaded, groups formed, questions extracted vs failed, and the last
// raw model response on repeated extraction failure.
func (uc *ControlUseCase) Status(ctx context.Context, id string) (*domain.PipelineStatus, error) {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	status := &domain.PipelineStatus{
		Document: *doc,
		Stage:    domain.StagePending,
	}

	cp, err := uc.checkpoints.Load(ctx, id)
	if err != nil {
		if domain.IsKind(err, domain.ErrCheckpointNotFound) {
			return status, nil
		}
		return nil, err
	}

	status.Stage = cp.Stage
	status.Paused = cp.Paused
	status.PagesRendered = cp.CompletedSet(domain.StageRendering).Len()
	status.PagesUploaded = cp.CompletedSet(domain.StageUploading).Len()
	status.PagesClassified = cp.CompletedSet(domain.StageClassifying).Len()
	status.GroupsFormed = cp.Totals[domain.StageExtracting]
	status.QuestionsDone = cp.CompletedSet(domain.StageExtracting).Len()
	status.QuestionsFailed = cp.FailedSet(domain.StageExtracting).Values()
	status.LastError = cp.LastError
	status.LastRawResponse = cp.LastRawResponse
	return status, nil
}

func (uc *ControlUseCase) Pause(ctx context.Context, documentID string) error {
	return uc.updateCheckpoint(ctx, documentID, func(cp *domain.Checkpoint) {
		cp.Paused = true
	})
}

// Resume clears the pause flag and moves failed units of the current
// stage back into the pending set (retry-from-failed-unit), then
// republishes the document so a worker picks it up.
func (uc *ControlUseCase) Resume(ctx context.Context, documentID string) error {
	err := uc.updateCheckpoint(ctx, documentID, func(cp *domain.Checkpoint) {
		cp.Paused = false
		cp.CancelRequested = false
		cp.ClearFailed()
	})
	if err != nil {
		return err
	}
	if err := uc.queue.PublishDocumentReceived(ctx, documentID); err != nil {
		return fmt.Errorf("publish resume event: %w", err)
	}
	return nil
}

func (uc *ControlUseCase) Cancel(ctx context.Context, documentID string) error {
	return uc.updateCheckpoint(ctx, documentID, func(cp *domain.Checkpoint) {
		cp.CancelRequested = true
	})
}

// Discard throws away all recorded progress for a document and puts it
// back in the uploaded state. The blob store keeps its page images;
// idempotent uploads make a fresh run cheap.
func (uc *ControlUseCase) Discard(ctx context.Context, documentID string) error {
	if _, err := uc.repo.GetByID(ctx, documentID); err != nil {
		return err
	}
	if err := uc.checkpoints.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return uc.repo.UpdateStatus(ctx, documentID, domain.StatusUploaded, "")
}

func (uc *ControlUseCase) updateCheckpoint(ctx context.Context, documentID string, mutate func(*domain.Checkpoint)) error {
	cp, err := uc.checkpoints.Load(ctx, documentID)
	if err != nil {
		return err
	}
	mutate(cp)
	if err := uc.checkpoints.Save(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
