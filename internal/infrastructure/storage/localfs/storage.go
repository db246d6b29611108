package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Storage is a filesystem-backed blob store. Page-image keys are
// deterministic, and Put is an upsert: writing an existing key is a
// no-op that returns the same locator, which is what makes re-uploads
// after a crash idempotent.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.basePath, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Put stores data under key and returns the key as locator. An existing
// object short-circuits; the write itself is temp-file + rename so a
// crash never leaves a torn object behind.
func (s *Storage) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	if _, err := os.Stat(path); err == nil {
		return key, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create key dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publish object: %w", err)
	}
	return key, nil
}

func (s *Storage) Get(_ context.Context, locator string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(locator)))
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}
