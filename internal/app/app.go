package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bzrportal/knowledge/internal/config"
	"github.com/bzrportal/knowledge/internal/core"
	db "github.com/bzrportal/knowledge/internal/core/database"
	"github.com/bzrportal/knowledge/internal/core/embedding"
	"github.com/bzrportal/knowledge/internal/core/extractor"
	"github.com/bzrportal/knowledge/internal/core/ingestion_engine"
	"github.com/bzrportal/knowledge/internal/core/llm"
	objectclient "github.com/bzrportal/knowledge/internal/core/object-client"
	"github.com/bzrportal/knowledge/internal/core/uploadqueue"
	"github.com/bzrportal/knowledge/internal/core/vectorindex"
	"github.com/bzrportal/knowledge/internal/models"
	"github.com/bzrportal/knowledge/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Ingestor     ingestion_engine.Ingestor
	Queue        *uploadqueue.Queue
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	// Fallback chain order: OpenAI first, Gemini second, deterministic
	// pseudo-vectors last (when enabled).
	var providers []core.EmbeddingProvider
	if cfg.OpenAIAPIKey != "" {
		openaiEmbedder, err := llm.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the openai embedder, %w", err)
		}
		providers = append(providers, openaiEmbedder)
	}
	if cfg.GeminiAPIKey != "" {
		geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.GeminiAPIKey, "")
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the gemini embedder, %w", err)
		}
		providers = append(providers, geminiEmbedder)
	}
	if len(providers) == 0 && !cfg.AllowFallback {
		return nil, fmt.Errorf("no embedding provider configured and fallback disabled")
	}

	generator := embedding.NewGenerator(providers, cfg.EmbedDim, cfg.AllowFallback)

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.GeminiAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
	}

	index := vectorindex.New(dbClient, generator, cfg.UpsertByPath)
	docExtractor := extractor.New()
	ingestor := ingestion_engine.NewDocumentIngestor(objClient, docExtractor, generator, index, cfg.IngestWorkers)

	queue := uploadqueue.New(cfg.UploadQueueSize, func(ctx context.Context, job models.UploadJob, report func(int)) (any, error) {
		report(10)
		recordID, err := ingestor.IngestOne(ctx, cfg.BucketName, job.FilePath, ingestion_engine.IngestMetadata{
			OwnerUserID: job.OwnerUserID,
		})
		if err != nil {
			return nil, err
		}
		report(90)
		return map[string]string{"record_id": recordID}, nil
	})

	answerService := services.NewAnswerService(dbClient, index, llmProvider, cfg.ChatSearchLimit, cfg.ChatScoreThreshold)
	migrationService := services.NewMigrationService(dbClient, objClient, ingestor, cfg.BucketName)

	server := NewServer(cfg, dbClient, objClient, ingestor, index, queue, answerService, migrationService)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Ingestor:     ingestor,
		Queue:        queue,
		Server:       server,
	}, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
