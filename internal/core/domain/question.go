package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

type Option struct {
	Letter    string `json:"letter"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type SourcePages struct {
	Question    []int `json:"question"`
	Explanation []int `json:"explanation"`
}

// ExtractedQuestion is one structured question record produced by the
// extractor. A record is only accepted after Validate passes.
type ExtractedQuestion struct {
	QuestionNumber     int         `json:"question_number"`
	Text               string      `json:"text"`
	Options            []Option    `json:"options"`
	Explanation        string      `json:"explanation,omitempty"`
	Difficulty         string      `json:"difficulty,omitempty"`
	HasImage           bool        `json:"has_image"`
	SourcePages        SourcePages `json:"source_pages"`
	ContentFingerprint string      `json:"content_fingerprint"`
}

// Validate enforces the acceptance invariants: non-empty question text,
// at least two options, exactly one of them correct.
func (q *ExtractedQuestion) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return WrapError(ErrExtractionSchemaViolation, "validate question", errors.New("empty question text"))
	}
	if len(q.Options) < 2 {
		return WrapError(ErrExtractionSchemaViolation, "validate question",
			fmt.Errorf("%d options, need at least 2", len(q.Options)))
	}
	correct := 0
	for _, opt := range q.Options {
		if opt.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return WrapError(ErrExtractionSchemaViolation, "validate question",
			fmt.Errorf("%d options marked correct, need exactly 1", correct))
	}
	return nil
}

// Fingerprint hashes normalized question text. Equal fingerprints mean
// the same question regardless of source document; that cross-document
// collision policy is deliberate.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(normalizeText(text)))
	return hex.EncodeToString(sum[:])
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// ExtractionItem is one question group plus its page images, assembled
// for a single extraction batch entry.
type ExtractionItem struct {
	Group QuestionGroup
	Pages []PageImageData
}

// PageImageData pairs a page number with its rendered PNG bytes.
type PageImageData struct {
	PageNumber int
	PNG        []byte
}
