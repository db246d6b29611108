package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
)

// QuestionRepository persists accepted questions keyed by content
// fingerprint, so duplicate content across documents collapses to a
// single row regardless of which run got there first.
type QuestionRepository struct {
	db *sql.DB
}

func NewQuestionRepository(db *sql.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

func (r *QuestionRepository) InsertIfAbsent(ctx context.Context, documentID string, question *domain.ExtractedQuestion) (bool, error) {
	payload, err := json.Marshal(question)
	if err != nil {
		return false, fmt.Errorf("marshal question: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
INSERT INTO questions (fingerprint, document_id, question_number, payload, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (fingerprint) DO NOTHING
`, question.ContentFingerprint, documentID, question.QuestionNumber, payload, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert question: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *QuestionRepository) ListFingerprints(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT fingerprint FROM questions`)
	if err != nil {
		return nil, fmt.Errorf("query fingerprints: %w", err)
	}
	defer rows.Close()

	var fingerprints []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		fingerprints = append(fingerprints, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fingerprints: %w", err)
	}
	return fingerprints, nil
}

// ListByDocument returns the stored questions for one document in
// question-number order. Used by the read API, not by the pipeline.
func (r *QuestionRepository) ListByDocument(ctx context.Context, documentID string) ([]*domain.ExtractedQuestion, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT payload
FROM questions
WHERE document_id = $1
ORDER BY question_number ASC
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var questions []*domain.ExtractedQuestion
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var question domain.ExtractedQuestion
		if err := json.Unmarshal(payload, &question); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		questions = append(questions, &question)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}
