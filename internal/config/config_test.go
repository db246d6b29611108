package config

import (
	"testing"
	"time"
)

func TestLoadPipelineDefaults(t *testing.T) {
	t.Setenv("RENDER_DPI", "")
	t.Setenv("EXTRACT_BATCH_SIZE", "")
	t.Setenv("EXTRACT_MAX_ATTEMPTS", "")
	t.Setenv("EXTRACT_INITIAL_BACKOFF", "")
	t.Setenv("UPLOAD_RETRY_BACKOFF", "")
	t.Setenv("CHECKPOINT_BACKEND", "")

	cfg := Load()
	if cfg.RenderDPI != 150 {
		t.Fatalf("expected default render dpi 150, got %d", cfg.RenderDPI)
	}
	if cfg.ExtractBatchSize != 4 {
		t.Fatalf("expected default extract batch size 4, got %d", cfg.ExtractBatchSize)
	}
	if cfg.ExtractMaxAttempts != 3 {
		t.Fatalf("expected default extract max attempts 3, got %d", cfg.ExtractMaxAttempts)
	}
	if cfg.ExtractInitialBackoff != 2*time.Second {
		t.Fatalf("expected default extract backoff 2s, got %v", cfg.ExtractInitialBackoff)
	}
	if cfg.UploadRetryBackoff != 500*time.Millisecond {
		t.Fatalf("expected default upload retry backoff 500ms, got %v", cfg.UploadRetryBackoff)
	}
	if cfg.CheckpointBackend != "postgres" {
		t.Fatalf("expected default checkpoint backend postgres, got %q", cfg.CheckpointBackend)
	}
}

func TestLoadParsesPipelineOverrides(t *testing.T) {
	t.Setenv("RENDER_DPI", "200")
	t.Setenv("EXTRACT_BATCH_SIZE", "8")
	t.Setenv("EXTRACT_INITIAL_BACKOFF", "500ms")
	t.Setenv("UPLOAD_RETRY_BACKOFF", "1s")
	t.Setenv("VISION_RPS", "0.5")
	t.Setenv("CHECKPOINT_BACKEND", "file")

	cfg := Load()
	if cfg.RenderDPI != 200 {
		t.Fatalf("expected render dpi 200, got %d", cfg.RenderDPI)
	}
	if cfg.ExtractBatchSize != 8 {
		t.Fatalf("expected extract batch size 8, got %d", cfg.ExtractBatchSize)
	}
	if cfg.ExtractInitialBackoff != 500*time.Millisecond {
		t.Fatalf("expected extract backoff 500ms, got %v", cfg.ExtractInitialBackoff)
	}
	if cfg.UploadRetryBackoff != time.Second {
		t.Fatalf("expected upload retry backoff 1s, got %v", cfg.UploadRetryBackoff)
	}
	if cfg.VisionRPS != 0.5 {
		t.Fatalf("expected vision rps 0.5, got %v", cfg.VisionRPS)
	}
	if cfg.CheckpointBackend != "file" {
		t.Fatalf("expected checkpoint backend file, got %q", cfg.CheckpointBackend)
	}
}

func TestLoadFallsBackOnUnparsableValues(t *testing.T) {
	t.Setenv("EXTRACT_MAX_ATTEMPTS", "many")
	t.Setenv("VISION_RPS", "fast")
	t.Setenv("EXTRACT_INITIAL_BACKOFF", "soon")

	cfg := Load()
	if cfg.ExtractMaxAttempts != 3 {
		t.Fatalf("expected fallback max attempts 3, got %d", cfg.ExtractMaxAttempts)
	}
	if cfg.VisionRPS != 2 {
		t.Fatalf("expected fallback vision rps 2, got %v", cfg.VisionRPS)
	}
	if cfg.ExtractInitialBackoff != 2*time.Second {
		t.Fatalf("expected fallback backoff 2s, got %v", cfg.ExtractInitialBackoff)
	}
}
