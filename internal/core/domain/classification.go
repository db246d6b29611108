package domain

import "sort"

type PageType string

const (
	PageQuestion    PageType = "question"
	PageExplanation PageType = "explanation"
	PageDiagram     PageType = "diagram"
	PageMixed       PageType = "mixed"
)

// PageClassification is the classifier's belief about one page. Absence
// of belief is represented by empty sets and confidence 0, never nil.
type PageClassification struct {
	PageNumber       int      `json:"page_number"`
	PageType         PageType `json:"page_type"`
	HasImage         bool     `json:"has_image"`
	QuestionNumbers  []int    `json:"question_numbers"`
	IsExplanationFor []int    `json:"is_explanation_for"`
	Confidence       float64  `json:"confidence"`
}

// DegradedClassification is the zero-confidence "unknown page" label
// substituted when the classifier call fails or returns unusable output.
func DegradedClassification(pageNumber int) PageClassification {
	return PageClassification{
		PageNumber:       pageNumber,
		PageType:         PageMixed,
		HasImage:         false,
		QuestionNumbers:  []int{},
		IsExplanationFor: []int{},
		Confidence:       0,
	}
}

// Normalized returns a copy with non-nil sorted deduplicated sets,
// confidence clamped to [0,1] and unknown page types coerced to mixed.
func (c PageClassification) Normalized() PageClassification {
	out := c
	out.QuestionNumbers = sortedUnique(c.QuestionNumbers)
	out.IsExplanationFor = sortedUnique(c.IsExplanationFor)

	switch out.PageType {
	case PageQuestion, PageExplanation, PageDiagram, PageMixed:
	default:
		out.PageType = PageMixed
	}

	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out
}

func sortedUnique(values []int) []int {
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
