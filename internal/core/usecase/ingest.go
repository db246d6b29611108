package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
	"github.com/dkruglov/exam-ingest/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	req ports.UploadRequest,
	body io.Reader,
) (*domain.SourceDocument, error) {
	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s/%s", id, sanitizeFilename(req.Filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.SourceDocument{
		ID:                id,
		Filename:          req.Filename,
		StoragePath:       storageKey,
		Category:          req.Category,
		Subject:           req.Subject,
		ExpectedQuestions: req.ExpectedQuestions,
		Status:            domain.StatusUploaded,
		Tags:              []string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentReceived(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish extraction event: %w", err)
	}

	return doc, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	switch base {
	// filepath.Base turns "" and bare separators into "." or "/".
	case ".", "..", "/", `\`:
		base = ""
	}
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.pdf"
	}
	return base
}
