// Command worker consumes the four broker queues and executes module runs,
// evaluations and legacy prompt chains.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claymoreai/claymore/internal/adapter/ai/openai"
	"github.com/claymoreai/claymore/internal/adapter/ai/tokencount"
	"github.com/claymoreai/claymore/internal/adapter/queue/rabbit"
	"github.com/claymoreai/claymore/internal/adapter/repo/postgres"
	"github.com/claymoreai/claymore/internal/config"
	"github.com/claymoreai/claymore/internal/domain"
	"github.com/claymoreai/claymore/internal/observability"
	"github.com/claymoreai/claymore/internal/prompt"
	"github.com/claymoreai/claymore/internal/usecase"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	broker, err := rabbit.Dial(ctx, cfg.BrokerURL, cfg.MaxAttempts)
	if err != nil {
		slog.Error("broker connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := broker.Close(); err != nil {
			slog.Error("broker close failed", slog.Any("error", err))
		}
	}()

	jobRepo := postgres.NewJobRepo(pool)
	candidateRepo := postgres.NewCandidateRepo(pool)
	fileRepo := postgres.NewFileRepo(pool)
	credRepo := postgres.NewCredentialRepo(pool)
	metricRepo := postgres.NewMetricRepo(pool)
	legacyRepo := postgres.NewLegacyRepo(pool)
	characterRepo := postgres.NewCharacterRepo(pool)

	chat := openai.New(cfg.OpenAIBaseURL)
	recorder := usecase.NewMetricRecorder(metricRepo, tokencount.NewCounter())

	evo := rabbit.EvoWorker{
		Jobs:       jobRepo,
		Candidates: candidateRepo,
		Files:      fileRepo,
		Creds:      credRepo,
		Chat:       chat,
		Metrics:    recorder,
	}
	generate := rabbit.GenerateWorker{
		Jobs:       jobRepo,
		Candidates: candidateRepo,
		Files:      fileRepo,
		Creds:      credRepo,
		Chat:       chat,
		Metrics:    recorder,
	}
	evaluate := rabbit.EvaluateWorker{
		Candidates: candidateRepo,
		Creds:      credRepo,
		Chat:       chat,
		Metrics:    recorder,
	}
	legacy := rabbit.LegacyWorker{
		Legacy:   legacyRepo,
		Creds:    credRepo,
		Chat:     chat,
		Expander: prompt.New(characterRepo),
	}

	// Metrics endpoint on its own port.
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.Any("error", err))
		}
	}()

	consume := func(queue string, prefetch int, h rabbit.Handler, legacyAck bool) {
		var err error
		if legacyAck {
			err = broker.ConsumeLegacy(ctx, queue, h)
		} else {
			err = broker.Consume(ctx, queue, prefetch, h)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("consumer stopped", slog.String("queue", queue), slog.Any("error", err))
			stop()
		}
	}

	go consume(domain.QueueLegacyJobs, 1, legacy.Handle, true)
	go consume(domain.QueueGenerate, 1, generate.Handle, false)
	go consume(domain.QueueEvaluate, 1, evaluate.Handle, false)
	go consume(domain.QueueEvo, cfg.EvoPrefetch, evo.Handle, false)

	slog.Info("worker started",
		slog.Int("evo_prefetch", cfg.EvoPrefetch),
		slog.Int("max_attempts", cfg.MaxAttempts))

	<-ctx.Done()
	slog.Info("worker shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
