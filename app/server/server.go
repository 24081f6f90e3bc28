package server

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"ragbridge/app/api"
	"ragbridge/app/middleware"
	"ragbridge/config"
	"ragbridge/loader/extract"
	"ragbridge/pipeline"
	"ragbridge/store"
)

type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	app      *fiber.App
	store    store.VectorStorer
	pipeline *pipeline.Pipeline
}

// NewServer builds every dependency from cfg. Nothing is listening until Run.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	p, st, err := pipeline.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, p, st), nil
}

// New wires the HTTP routes around an existing pipeline.
func New(cfg *config.Config, p *pipeline.Pipeline, st store.VectorStorer) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   slog.Default(),
		store:    st,
		pipeline: p,
	}
	s.app = fiber.New(fiber.Config{
		ErrorHandler:          api.ErrorHandler,
		BodyLimit:             cfg.Server.UploadLimitMB * 1024 * 1024,
		DisableStartupMessage: true,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	margins := extract.Margins{Top: s.cfg.Loader.CropTop, Bottom: s.cfg.Loader.CropBottom}

	var (
		app               = s.app
		checkHandler      = api.NewCheckHandler()
		documentHandler   = api.NewDocumentHandler(s.pipeline, margins)
		collectionHandler = api.NewCollectionHandler(s.pipeline)
		searchHandler     = api.NewSearchHandler(s.pipeline)
		configHandler     = api.NewConfigHandler(s.cfg)
	)
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(s.logger))
	app.Use(middleware.Deadline(s.cfg.Server.RequestTimeout))

	var (
		check = app.Group("/check")
		apiv1 = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Post("/documents/upload", documentHandler.HandleUpload)
	apiv1.Post("/documents/chunks", documentHandler.HandleChunks)
	apiv1.Post("/collections/embeddings", collectionHandler.HandleEmbeddings)
	apiv1.Post("/search/semantic", searchHandler.HandleSemantic)
	apiv1.Post("/search/answer", searchHandler.HandleAnswer)
	apiv1.Get("/search/embeddings", searchHandler.HandleEmbedding)
	apiv1.Get("/search/chat", searchHandler.HandleChat)
	apiv1.Get("/config", configHandler.HandleGetConfig)
}

// App exposes the fiber app, mainly for app.Test in handler tests.
func (s *Server) App() *fiber.App { return s.app }

// Run blocks until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("server started", "addr", s.cfg.Server.Addr, "store", s.cfg.Store.Type, "chunk_mode", s.cfg.Chunking.Mode)
	if err := s.app.Listen(s.cfg.Server.Addr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the vector store.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.logger.Info("server stopped")
	return err
}
