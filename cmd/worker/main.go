package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dkruglov/exam-ingest/internal/bootstrap"
	"github.com/dkruglov/exam-ingest/internal/config"
	"github.com/dkruglov/exam-ingest/internal/observability/logging"
	"github.com/dkruglov/exam-ingest/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	pipelineMetrics := metrics.NewPipelineMetrics("worker")
	app.Pipeline.SetMetrics(pipelineMetrics)

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: pipelineMetrics.Handler(),
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	events, unsubscribe := app.Progress.Subscribe()
	defer unsubscribe()
	go func() {
		for event := range events {
			slog.Info("pipeline_progress",
				"document_id", event.DocumentID,
				"stage", event.Stage,
				"units_completed", event.UnitsCompleted,
				"units_total", event.UnitsTotal,
				"last_error", event.LastError,
			)
		}
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentReceived(ctx, func(handlerCtx context.Context, documentID string) error {
		pipelineMetrics.StartDocument()
		defer pipelineMetrics.FinishDocument()

		runCtx, cancel := context.WithTimeout(handlerCtx, 60*time.Minute)
		defer cancel()
		return app.Pipeline.Run(runCtx, documentID)
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
