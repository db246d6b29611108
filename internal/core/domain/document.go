package domain

import (
	"fmt"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// SourceDocument identifies one input PDF. Metadata is immutable once
// rasterization begins; only status, error and page count are updated.
type SourceDocument struct {
	ID                string         `json:"id"`
	Filename          string         `json:"filename"`
	StoragePath       string         `json:"storage_path"`
	Category          string         `json:"category,omitempty"`
	Subject           string         `json:"subject,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	ExpectedQuestions int            `json:"expected_questions,omitempty"`
	PageCount         int            `json:"page_count,omitempty"`
	Status            DocumentStatus `json:"status"`
	Error             string         `json:"error,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// PageImage is one rendered page, produced once and never mutated.
type PageImage struct {
	PageNumber int       `json:"page_number"`
	Locator    string    `json:"locator"`
	RenderedAt time.Time `json:"rendered_at"`
}

// PageKey is the deterministic blob key for an uploaded page image.
// Deterministic keys are what make re-uploads idempotent and let later
// stages recompute locators instead of persisting them.
func PageKey(documentID string, pageNumber int) string {
	return fmt.Sprintf("%s/page-%d.png", documentID, pageNumber)
}

// ScratchKey is the staging key for a rendered-but-not-yet-uploaded page.
func ScratchKey(documentID string, pageNumber int) string {
	return fmt.Sprintf("%s/scratch/page-%d.png", documentID, pageNumber)
}
