package bootstrap

import (
	"context"
	"fmt"

	"github.com/dkruglov/exam-ingest/internal/config"
	"github.com/dkruglov/exam-ingest/internal/core/ports"
	"github.com/dkruglov/exam-ingest/internal/core/usecase"
	checkpointfile "github.com/dkruglov/exam-ingest/internal/infrastructure/checkpoint/file"
	"github.com/dkruglov/exam-ingest/internal/infrastructure/llm/vision"
	"github.com/dkruglov/exam-ingest/internal/infrastructure/queue/nats"
	"github.com/dkruglov/exam-ingest/internal/infrastructure/rasterizer/mupdf"
	"github.com/dkruglov/exam-ingest/internal/infrastructure/repository/postgres"
	"github.com/dkruglov/exam-ingest/internal/infrastructure/resilience"
	"github.com/dkruglov/exam-ingest/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config

	Queue    ports.MessageQueue
	Repo     ports.DocumentRepository
	IngestUC ports.DocumentIngestor
	Control  *usecase.ControlUseCase
	Pipeline *usecase.Pipeline
	Progress *usecase.ProgressBroadcaster

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	questions := postgres.NewQuestionRepository(db)

	var checkpoints ports.CheckpointStore
	switch cfg.CheckpointBackend {
	case "file":
		store, err := checkpointfile.NewStore(cfg.CheckpointDir)
		if err != nil {
			return nil, fmt.Errorf("init checkpoint store: %w", err)
		}
		checkpoints = store
	default:
		checkpoints = postgres.NewCheckpointRepository(db)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	// The vision backend runs 3-minute calls; its executor backs off on
	// a seconds scale instead of the in-cluster default.
	visionExecutor := resilience.NewExecutor(resilience.ExternalAIConfig())
	visionClient := vision.New(cfg.VisionURL, cfg.VisionAPIKey, cfg.VisionModel, cfg.VisionRPS, visionExecutor)
	classifier := vision.NewClassifier(visionClient)
	extractor := vision.NewExtractor(visionClient)

	raster := mupdf.New(cfg.RenderDPI)
	progress := usecase.NewProgressBroadcaster(0)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	controlUC := usecase.NewControlUseCase(repo, checkpoints, queue, questions)
	pipeline := usecase.NewPipeline(
		repo, storage, raster, classifier, extractor, checkpoints, questions, progress,
		usecase.PipelineConfig{
			RenderWorkers:         cfg.RenderWorkers,
			UploadWorkers:         cfg.UploadWorkers,
			UploadAttempts:        cfg.UploadAttempts,
			UploadRetryBackoff:    cfg.UploadRetryBackoff,
			ClassifyWorkers:       cfg.ClassifyWorkers,
			ClassifyBatchSize:     cfg.ClassifyBatchSize,
			ExtractBatchSize:      cfg.ExtractBatchSize,
			ExtractMaxAttempts:    cfg.ExtractMaxAttempts,
			ExtractInitialBackoff: cfg.ExtractInitialBackoff,
			DiagramPageCap:        cfg.DiagramPageCap,
		},
	)

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,

		IngestUC: ingestUC,
		Control:  controlUC,
		Pipeline: pipeline,
		Progress: progress,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
