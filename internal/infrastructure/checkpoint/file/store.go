package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
)

// Store keeps one JSON checkpoint file per document under a base
// directory. Writes go through a temp file and rename so a crash mid
// write never leaves a truncated checkpoint behind.
type Store struct {
	basePath string
}

func NewStore(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

func (s *Store) path(documentID string) string {
	return filepath.Join(s.basePath, documentID+".json")
}

func (s *Store) Load(_ context.Context, documentID string) (*domain.Checkpoint, error) {
	data, err := os.ReadFile(s.path(documentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrCheckpointNotFound, "load checkpoint", err)
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var checkpoint domain.Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func (s *Store) Save(_ context.Context, checkpoint *domain.Checkpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.basePath, "checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path(checkpoint.DocumentID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, documentID string) error {
	if err := os.Remove(s.path(documentID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
