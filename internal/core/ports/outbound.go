package ports

import (
	"context"
	"io"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
)

// DocumentRepository persists and reads source document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.SourceDocument) error
	GetByID(ctx context.Context, id string) (*domain.SourceDocument, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SetPageCount(ctx context.Context, id string, pageCount int) error
}

// ObjectStorage is the blob service: source PDFs as streams, page
// images as keyed byte objects. Put has upsert semantics: writing an
// already-stored key is a no-op that returns the same locator.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, locator string) ([]byte, error)
}

// PageRasterizer opens a PDF byte stream for page-at-a-time rendering.
// An unopenable document is domain.ErrDocumentUnreadable; a corrupt
// page fails only that page with domain.ErrPageRenderFailed.
type PageRasterizer interface {
	Open(ctx context.Context, pdf []byte) (RasterDocument, error)
}

// RasterDocument is one open PDF. Callers may render any subset of
// pages, which is what makes partially-rendered documents resumable.
type RasterDocument interface {
	PageCount() int
	RenderPage(ctx context.Context, pageNumber int) ([]byte, error)
	Close() error
}

// PageClassifier labels one page image. A single attempt from the
// caller's view; transport retries live inside the implementation.
type PageClassifier interface {
	ClassifyPage(ctx context.Context, pageNumber int, image []byte) (domain.PageClassification, error)
}

// QuestionExtractor turns a batch of question groups into structured
// question records in one model call.
type QuestionExtractor interface {
	ExtractBatch(ctx context.Context, items []domain.ExtractionItem) ([]domain.ExtractedQuestion, error)
}

// CheckpointStore is durable pipeline progress keyed by document ID.
// Load returns domain.ErrCheckpointNotFound for unknown documents.
type CheckpointStore interface {
	Load(ctx context.Context, documentID string) (*domain.Checkpoint, error)
	Save(ctx context.Context, checkpoint *domain.Checkpoint) error
	Delete(ctx context.Context, documentID string) error
}

// QuestionRepository is the persistence sink for accepted questions.
// InsertIfAbsent reports inserted-vs-duplicate so the in-memory
// fingerprint cache can reconcile with storage truth.
type QuestionRepository interface {
	InsertIfAbsent(ctx context.Context, documentID string, question *domain.ExtractedQuestion) (bool, error)
	ListFingerprints(ctx context.Context) ([]string, error)
}

// QuestionReader serves stored questions for the read API.
type QuestionReader interface {
	ListByDocument(ctx context.Context, documentID string) ([]*domain.ExtractedQuestion, error)
}

// MessageQueue publishes/consumes extraction work events.
type MessageQueue interface {
	PublishDocumentReceived(ctx context.Context, documentID string) error
	SubscribeDocumentReceived(ctx context.Context, handler func(context.Context, string) error) error
}
