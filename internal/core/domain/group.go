package domain

import "sort"

// QuestionGroup is the set of pages attributed to one logical question.
// It is derived from classifications and recomputable at any time.
type QuestionGroup struct {
	QuestionNumber   int   `json:"question_number"`
	QuestionPages    []int `json:"question_pages"`
	ExplanationPages []int `json:"explanation_pages"`
	DiagramPages     []int `json:"diagram_pages"`
}

// LowConfidence reports a group with zero question pages. Such a group
// is still valid (the extractor may recover it from explanation or
// diagram pages alone) but downstream consumers should flag it.
func (g QuestionGroup) LowConfidence() bool {
	return len(g.QuestionPages) == 0
}

// BuildQuestionGroups partitions classified pages into per-question page
// sets. Pure and deterministic: identical input yields identical output.
// A page may legitimately belong to several groups (shared diagrams).
func BuildQuestionGroups(classifications []PageClassification) map[int]QuestionGroup {
	groups := make(map[int]QuestionGroup)

	ensure := func(questionNumber int) QuestionGroup {
		if g, ok := groups[questionNumber]; ok {
			return g
		}
		return QuestionGroup{QuestionNumber: questionNumber}
	}

	// Every question number mentioned anywhere gets a group, even if no
	// page ends up attached to it as a question page.
	for _, raw := range classifications {
		cls := raw.Normalized()
		for _, q := range cls.QuestionNumbers {
			groups[q] = ensure(q)
		}
		for _, q := range cls.IsExplanationFor {
			groups[q] = ensure(q)
		}
	}

	for _, raw := range classifications {
		cls := raw.Normalized()

		if cls.PageType == PageQuestion || cls.PageType == PageMixed {
			for _, q := range cls.QuestionNumbers {
				g := ensure(q)
				g.QuestionPages = appendPage(g.QuestionPages, cls.PageNumber)
				groups[q] = g
			}
		}

		if cls.PageType == PageDiagram || (cls.HasImage && cls.PageType != PageExplanation) {
			for _, q := range cls.QuestionNumbers {
				g := ensure(q)
				g.DiagramPages = appendPage(g.DiagramPages, cls.PageNumber)
				groups[q] = g
			}
		}

		if cls.PageType == PageExplanation || len(cls.IsExplanationFor) > 0 {
			targets := cls.IsExplanationFor
			if len(targets) == 0 {
				// Explanation page that only claims question numbers.
				targets = cls.QuestionNumbers
			}
			for _, q := range targets {
				g := ensure(q)
				g.ExplanationPages = appendPage(g.ExplanationPages, cls.PageNumber)
				groups[q] = g
			}
		}
	}

	for q, g := range groups {
		sort.Ints(g.QuestionPages)
		sort.Ints(g.ExplanationPages)
		sort.Ints(g.DiagramPages)
		groups[q] = g
	}
	return groups
}

func appendPage(pages []int, page int) []int {
	for _, p := range pages {
		if p == page {
			return pages
		}
	}
	return append(pages, page)
}

// GroupNumbers returns the sorted question numbers of a group map.
func GroupNumbers(groups map[int]QuestionGroup) []int {
	numbers := make([]int, 0, len(groups))
	for q := range groups {
		numbers = append(numbers, q)
	}
	sort.Ints(numbers)
	return numbers
}
