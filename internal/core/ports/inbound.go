package ports

import (
	"context"
	"io"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
)

// UploadRequest carries the input metadata accompanying a PDF stream.
type UploadRequest struct {
	Filename          string
	Category          string
	Subject           string
	ExpectedQuestions int
}

// DocumentIngestor is the inbound contract for document upload.
type DocumentIngestor interface {
	Upload(ctx context.Context, req UploadRequest, body io.Reader) (*domain.SourceDocument, error)
}

// PipelineRunner executes the extraction pipeline for one document,
// resuming from its checkpoint when one exists.
type PipelineRunner interface {
	Run(ctx context.Context, documentID string) error
}

// PipelineController exposes the operator controls. Pause and cancel
// are cooperative: in-flight units finish, the checkpoint stays
// consistent and resumable.
type PipelineController interface {
	Pause(ctx context.Context, documentID string) error
	Resume(ctx context.Context, documentID string) error
	Cancel(ctx context.Context, documentID string) error
	Discard(ctx context.Context, documentID string) error
}

// DocumentReader is the read model for document metadata, progress and
// extracted questions.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.SourceDocument, error)
	Status(ctx context.Context, id string) (*domain.PipelineStatus, error)
	ListQuestions(ctx context.Context, id string) ([]*domain.ExtractedQuestion, error)
}
