package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpadapter "github.com/kirillkom/legal-doc-assistant/internal/adapters/http"
	"github.com/kirillkom/legal-doc-assistant/internal/config"
	"github.com/kirillkom/legal-doc-assistant/internal/core/usecase"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/extractor"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/extractor/ocr"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/knowledge"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/vector/bolt"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/vector/memory"
	"github.com/kirillkom/legal-doc-assistant/internal/observability/metrics"
)

const serviceName = "legal-doc-assistant"

// App is the single process that serves the API, consumes the ingest queue
// and runs the processing coordinator. Per-user indexes live in its memory.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue       *nats.Queue
	Coordinator *usecase.Coordinator
	Indexes     *memory.Registry
	Handler     http.Handler

	closeFn func()
}

func resilienceConfig(cfg config.Config, attemptTimeout time.Duration) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.ResilienceRetryAttempts
	rc.BreakerEnabled = cfg.ResilienceBreakerEnabled
	rc.BreakerOpenTimeout = time.Duration(cfg.ResilienceBreakerTimeoutS) * time.Second
	rc.AttemptTimeout = attemptTimeout
	return rc
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*App, error) {
		closeAll()
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return fail(fmt.Errorf("open postgres: %w", err))
	}
	closers = append(closers, func() { _ = db.Close() })
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fail(fmt.Errorf("ensure schema: %w", err))
	}
	chats := postgres.NewChatRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return fail(fmt.Errorf("init object storage: %w", err))
	}

	natsConn, err := nats.Connect(cfg.NATSURL, nats.ConnOptions{Logger: logger})
	if err != nil {
		return fail(fmt.Errorf("init message queue: %w", err))
	}
	closers = append(closers, natsConn.Close)
	queue := nats.NewQueue(natsConn, cfg.NATSIngestSubject, nats.QueueOptions{
		Executor: resilience.NewExecutor(resilienceConfig(cfg, 5*time.Second)),
		Logger:   logger,
	})
	notifier := nats.NewNotifier(natsConn, cfg.NATSNotifySubjectPrefix, resilience.NewExecutor(resilienceConfig(cfg, 5*time.Second)))

	snapshots, err := bolt.NewSnapshotStore(cfg.IndexSnapshotPath)
	if err != nil {
		return fail(fmt.Errorf("open index snapshots: %w", err))
	}
	closers = append(closers, func() { _ = snapshots.Close() })
	indexes := memory.NewRegistry(snapshots, logger)
	restored, err := indexes.Restore(ctx)
	if err != nil {
		logger.Warn("index_restore_failed", "error", err)
	}
	logger.Info("user_indexes_restored", "users", restored)

	kb, err := knowledge.Load(cfg.KnowledgeBasePath)
	if err != nil {
		return fail(fmt.Errorf("load knowledge base: %w", err))
	}

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:            cfg.OllamaTimeout(),
		ContextWindow:      cfg.OllamaContextWindow,
		ResilienceExecutor: resilience.NewExecutor(resilienceConfig(cfg, cfg.OllamaTimeout())),
	})
	embedder := ollama.NewEmbedder(ollamaClient)
	analyzer := ollama.NewAnalyzer(ollamaClient)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	router := extractor.NewRouter(
		pdf.NewExtractor(),
		ocr.NewEnhancer(ocr.NewEngine(cfg.TesseractPath), ollamaClient, logger),
	)

	registry := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPServerMetrics(serviceName, registry)
	coordinatorMetrics := metrics.NewCoordinatorMetrics(serviceName, registry)

	coordinator := usecase.NewCoordinator(usecase.CoordinatorDeps{
		Repo:      repo,
		Storage:   storage,
		Extractor: router,
		Analyzer:  analyzer,
		Chunker:   chunker,
		Embedder:  embedder,
		Indexes:   indexes,
		Backend:   ollamaClient,
		Notifier:  notifier,
		Admission: usecase.NewAdmission(cfg.MaxJobsPerUser, cfg.MaxJobsGlobal),
		Metrics:   coordinatorMetrics,
		Logger:    logger,
	}, usecase.CoordinatorConfig{
		MinContentChars:  cfg.MinContentChars,
		AdmissionBackoff: cfg.AdmissionBackoff(),
		ProcessTimeout:   cfg.ProcessTimeout(),
	})

	composer := usecase.NewAnswerComposer(ollamaClient, kb, indexes, embedder, logger, usecase.ComposerConfig{
		TopK:      cfg.RAGTopK,
		MinScore:  cfg.RAGMinScore,
		MaxTokens: cfg.AnswerMaxTokens,
	})
	queryUC := usecase.NewQueryUseCase(repo, indexes, chunker, embedder, composer, chats, logger, usecase.QueryConfig{
		TopK:                 cfg.RAGTopK,
		DocumentContextChars: cfg.RAGDocumentContextChars,
	})
	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue, cfg.MaxUploadBytes, logger)
	documents := usecase.NewDocumentService(repo, storage, indexes, coordinator, logger)

	handler := httpadapter.NewRouter(ingestUC, queryUC, documents, queryUC, httpadapter.Options{
		APIKey:         cfg.APIKey,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RateLimitRPS:   cfg.APIRateLimitRPS,
		RateLimitBurst: cfg.APIRateLimitBurst,
		MaxInFlight:    cfg.APIMaxInFlight,
		Metrics:        httpMetrics,
		MetricsHandler: metrics.Handler(registry),
		HealthChecks: map[string]httpadapter.HealthCheck{
			"postgres": db.PingContext,
			"ollama":   ollamaClient.Ping,
			"nats": func(context.Context) error {
				if !queue.Connected() {
					return errors.New("not connected")
				}
				return nil
			},
		},
		Logger: logger,
	}).Handler()

	return &App{
		Config:      cfg,
		Logger:      logger,
		Queue:       queue,
		Coordinator: coordinator,
		Indexes:     indexes,
		Handler:     handler,
		closeFn:     closeAll,
	}, nil
}

// ConsumeIngest hands every queued document id to the coordinator until ctx
// ends. Jobs run in the background; the handler returns immediately.
func (a *App) ConsumeIngest(ctx context.Context) error {
	return a.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		a.Coordinator.Submit(handlerCtx, documentID)
		return nil
	})
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
