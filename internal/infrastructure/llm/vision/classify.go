package vision

import (
	"context"
	"encoding/json"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
	"github.com/dkruglov/exam-ingest/internal/core/ports"
)

// Classifier implements ports.PageClassifier on top of the vision
// chat endpoint.
type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	compileSchemas()
	return &Classifier{client: client}
}

var _ ports.PageClassifier = (*Classifier)(nil)

type classificationResponse struct {
	PageType         string  `json:"page_type"`
	HasImage         bool    `json:"has_image"`
	QuestionNumbers  []int   `json:"question_numbers"`
	IsExplanationFor []int   `json:"is_explanation_for"`
	Confidence       float64 `json:"confidence"`
}

func (c *Classifier) ClassifyPage(ctx context.Context, pageNumber int, image []byte) (domain.PageClassification, error) {
	const operation = "vision.classify_page"

	user := []contentPart{
		textPart(classifyUserPrompt),
		imagePart(image),
	}
	raw, err := c.client.complete(ctx, operation, classifySystemPrompt, user, "page_classification", json.RawMessage(classificationSchemaJSON))
	if err != nil {
		return domain.PageClassification{}, err
	}

	var parsed classificationResponse
	if _, err := decodeLenient(raw, &parsed); err != nil {
		return domain.PageClassification{}, &domain.RawResponseError{
			Operation: operation,
			Raw:       raw,
			Err:       domain.WrapError(domain.ErrExtractionMalformed, operation, err),
		}
	}
	cls := domain.PageClassification{
		PageNumber:       pageNumber,
		PageType:         domain.PageType(parsed.PageType),
		HasImage:         parsed.HasImage,
		QuestionNumbers:  parsed.QuestionNumbers,
		IsExplanationFor: parsed.IsExplanationFor,
		Confidence:       parsed.Confidence,
	}
	return cls.Normalized(), nil
}
