package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
)

// CheckpointRepository stores pipeline checkpoints as one JSONB row per
// document. The whole checkpoint is replaced on every save, which keeps
// the row consistent with the single-writer discipline upstream.
type CheckpointRepository struct {
	db *sql.DB
}

func NewCheckpointRepository(db *sql.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

func (r *CheckpointRepository) Load(ctx context.Context, documentID string) (*domain.Checkpoint, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT payload
FROM pipeline_checkpoints
WHERE document_id = $1
`, documentID)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrCheckpointNotFound, "load checkpoint", err)
		}
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}

	var checkpoint domain.Checkpoint
	if err := json.Unmarshal(payload, &checkpoint); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func (r *CheckpointRepository) Save(ctx context.Context, checkpoint *domain.Checkpoint) error {
	payload, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO pipeline_checkpoints (document_id, payload, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (document_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
`, checkpoint.DocumentID, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

func (r *CheckpointRepository) Delete(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, `
DELETE FROM pipeline_checkpoints
WHERE document_id = $1
`, documentID)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
