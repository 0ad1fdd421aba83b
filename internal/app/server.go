package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bzrportal/knowledge/internal/api/handlers"
	appMiddleware "github.com/bzrportal/knowledge/internal/api/middlewares"
	"github.com/bzrportal/knowledge/internal/config"
	"github.com/bzrportal/knowledge/internal/core"
	"github.com/bzrportal/knowledge/internal/core/ingestion_engine"
	"github.com/bzrportal/knowledge/internal/core/uploadqueue"
	"github.com/bzrportal/knowledge/internal/core/vectorindex"
	"github.com/bzrportal/knowledge/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, obj core.ObjectClient, ing ingestion_engine.Ingestor, index *vectorindex.Index, queue *uploadqueue.Queue, answers *services.AnswerService, migration *services.MigrationService) *Server {
	ingestHandler := handlers.NewIngestHandler(ing, migration)
	chatHandler := handlers.NewChatHandler(answers)
	uploadHandler := handlers.NewUploadHandler(obj, queue, cfg)
	docHandler := handlers.NewDocumentHandler(db, index, obj, cfg)
	blogHandler := handlers.NewBlogHandler(db)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// API routes
	r.Route("/api", func(api chi.Router) {
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware)
			protected.Use(middleware.Timeout(60 * time.Second))

			protected.Post("/ingest", ingestHandler.IngestOne)
			protected.Post("/ingest/batch", ingestHandler.IngestBatch)
			protected.Post("/knowledge/migrate", ingestHandler.MigrateKnowledge)
			protected.Post("/chat/query", chatHandler.Query)

			protected.Post("/documents/upload", uploadHandler.Upload)
			protected.Get("/uploads/{jobID}", uploadHandler.Status)

			protected.Get("/documents", docHandler.List)
			protected.Get("/documents/files", docHandler.Files)
			protected.Get("/search", docHandler.Search)
			protected.Patch("/documents/{id}", docHandler.Update)
			protected.Delete("/documents/{id}", docHandler.Delete)

			protected.Get("/blog/posts", blogHandler.List)
		})

		// The event stream outlives the request timeout, so it gets its
		// own group without one.
		api.Group(func(stream chi.Router) {
			stream.Use(appMiddleware.JWTMiddleware)
			stream.Get("/uploads/{jobID}/events", uploadHandler.Events)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
