package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
	"github.com/dkruglov/exam-ingest/internal/core/ports"
)

// Extractor implements ports.QuestionExtractor. One call covers a
// batch of question groups with their page images attached in order.
type Extractor struct {
	client *Client
}

func NewExtractor(client *Client) *Extractor {
	compileSchemas()
	return &Extractor{client: client}
}

var _ ports.QuestionExtractor = (*Extractor)(nil)

type extractionResponse struct {
	Questions []struct {
		QuestionNumber int    `json:"question_number"`
		Text           string `json:"text"`
		Options        []struct {
			Letter    string `json:"letter"`
			Text      string `json:"text"`
			IsCorrect bool   `json:"is_correct"`
		} `json:"options"`
		Explanation string `json:"explanation"`
		Difficulty  string `json:"difficulty"`
		HasImage    bool   `json:"has_image"`
	} `json:"questions"`
}

func (e *Extractor) ExtractBatch(ctx context.Context, items []domain.ExtractionItem) ([]domain.ExtractedQuestion, error) {
	const operation = "vision.extract_batch"
	if len(items) == 0 {
		return nil, nil
	}

	user := buildExtractionRequest(items)
	raw, err := e.client.complete(ctx, operation, extractSystemPrompt, user, "question_extraction", json.RawMessage(extractionSchemaJSON))
	if err != nil {
		return nil, err
	}

	var parsed extractionResponse
	candidate, err := decodeLenient(raw, &parsed)
	if err != nil {
		return nil, &domain.RawResponseError{
			Operation: operation,
			Raw:       raw,
			Err:       domain.WrapError(domain.ErrExtractionMalformed, operation, err),
		}
	}
	if err := validateAgainst(extractionSchema, candidate); err != nil {
		return nil, &domain.RawResponseError{
			Operation: operation,
			Raw:       raw,
			Err:       domain.WrapError(domain.ErrExtractionSchemaViolation, operation, err),
		}
	}

	questions := make([]domain.ExtractedQuestion, 0, len(parsed.Questions))
	for _, q := range parsed.Questions {
		options := make([]domain.Option, 0, len(q.Options))
		for _, opt := range q.Options {
			options = append(options, domain.Option{
				Letter:    opt.Letter,
				Text:      opt.Text,
				IsCorrect: opt.IsCorrect,
			})
		}
		questions = append(questions, domain.ExtractedQuestion{
			QuestionNumber: q.QuestionNumber,
			Text:           q.Text,
			Options:        options,
			Explanation:    q.Explanation,
			Difficulty:     q.Difficulty,
			HasImage:       q.HasImage,
		})
	}
	return questions, nil
}

// buildExtractionRequest lays out one text manifest followed by the
// page images, annotated per question so the model can attribute each
// image to the right group.
func buildExtractionRequest(items []domain.ExtractionItem) []contentPart {
	var manifest strings.Builder
	manifest.WriteString(extractUserPromptHeader)
	for _, item := range items {
		manifest.WriteString(fmt.Sprintf("\n- question %d:", item.Group.QuestionNumber))
		if len(item.Group.QuestionPages) > 0 {
			manifest.WriteString(fmt.Sprintf(" statement on pages %v,", item.Group.QuestionPages))
		}
		if len(item.Group.ExplanationPages) > 0 {
			manifest.WriteString(fmt.Sprintf(" explanation on pages %v,", item.Group.ExplanationPages))
		}
		if len(item.Group.DiagramPages) > 0 {
			manifest.WriteString(fmt.Sprintf(" diagrams on pages %v,", item.Group.DiagramPages))
		}
		manifest.WriteString(" images attached below in page order")
	}

	parts := []contentPart{textPart(manifest.String())}
	for _, item := range items {
		for _, page := range item.Pages {
			parts = append(parts, textPart(fmt.Sprintf("Question %d, page %d:", item.Group.QuestionNumber, page.PageNumber)))
			parts = append(parts, imagePart(page.PNG))
		}
	}
	return parts
}
