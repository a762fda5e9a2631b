// Command server starts the Claymore control-plane HTTP server.
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

	"github.com/claymoreai/claymore/internal/adapter/ai/openai"
	"github.com/claymoreai/claymore/internal/adapter/ai/tokencount"
	"github.com/claymoreai/claymore/internal/adapter/httpserver"
	"github.com/claymoreai/claymore/internal/adapter/queue/rabbit"
	"github.com/claymoreai/claymore/internal/adapter/repo/postgres"
	"github.com/claymoreai/claymore/internal/adapter/search/elastic"
	"github.com/claymoreai/claymore/internal/adapter/textextractor/unstructured"
	"github.com/claymoreai/claymore/internal/app"
	"github.com/claymoreai/claymore/internal/config"
	"github.com/claymoreai/claymore/internal/observability"
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

	ctx := context.Background()
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

	searcher, err := elastic.New(cfg.ESURL)
	if err != nil {
		slog.Error("elasticsearch connect failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Repositories
	moduleRepo := postgres.NewModuleRepo(pool)
	templateRepo := postgres.NewTemplateRepo(pool)
	jobRepo := postgres.NewJobRepo(pool)
	candidateRepo := postgres.NewCandidateRepo(pool)
	fileRepo := postgres.NewFileRepo(pool)
	dataRepo := postgres.NewDataRepo(pool)
	credRepo := postgres.NewCredentialRepo(pool)
	metricRepo := postgres.NewMetricRepo(pool)
	workspaceRepo := postgres.NewWorkspaceRepo(pool)

	// External services
	chat := openai.New(cfg.OpenAIBaseURL)
	chunker := unstructured.New(cfg.UnstructuredURL)
	recorder := usecase.NewMetricRecorder(metricRepo, tokencount.NewCounter())
	preprocess := usecase.NewPreprocessor(credRepo, chat)

	// Usecases
	moduleSvc := usecase.NewModuleService(moduleRepo, templateRepo, jobRepo, candidateRepo, fileRepo, workspaceRepo)
	runSvc := usecase.RunService{
		Modules:    moduleRepo,
		Jobs:       jobRepo,
		Files:      fileRepo,
		Data:       dataRepo,
		Workspaces: workspaceRepo,
		Publisher:  broker,
		Chunker:    chunker,
		Preprocess: preprocess,
	}
	dataSvc := usecase.NewDataService(moduleRepo, candidateRepo, dataRepo, workspaceRepo)
	jobSvc := usecase.NewJobService(jobRepo, moduleRepo, workspaceRepo)
	trySvc := usecase.TryService{
		Modules:    moduleRepo,
		Workspaces: workspaceRepo,
		Creds:      credRepo,
		Chat:       chat,
		Metrics:    recorder,
		Preprocess: preprocess,
	}
	chatSvc := usecase.ChatService{
		Modules:    moduleRepo,
		Candidates: candidateRepo,
		Workspaces: workspaceRepo,
		Searcher:   searcher,
		Creds:      credRepo,
		Chat:       chat,
		Metrics:    recorder,
	}

	srv := httpserver.NewServer(cfg, moduleSvc, runSvc, dataSvc, jobSvc, trySvc, chatSvc)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
