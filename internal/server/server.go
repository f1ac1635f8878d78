package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/learngate/apiserver/config"
	"github.com/learngate/apiserver/internal/auth"
	"github.com/learngate/apiserver/internal/db"
	"github.com/learngate/apiserver/internal/events"
	"github.com/learngate/apiserver/internal/handlers"
	"github.com/learngate/apiserver/internal/services"
	"github.com/learngate/apiserver/internal/storage"
	"github.com/learngate/apiserver/internal/store"
)

// Server wraps the HTTP server, the router, and every connection it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     events.Broker
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	redisClient, err := auth.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	slots := auth.NewRedisSlotStore(redisClient)
	settings := auth.NewRedisSettingsReader(redisClient)
	resolver := auth.NewResolver(slots, settings)

	broker, err := openBroker(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	publisher := events.NewPublisher(broker)

	backend, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		if broker != nil {
			_ = broker.Close()
		}
		_ = dbConn.Close()
		return nil, err
	}
	documents := storage.NewDocuments(backend)

	userRepo := store.NewUserRepository(dbConn)
	approvalRepo := store.NewApprovalRepository(dbConn)

	userService := services.NewUserService(userRepo)
	approvalService := services.NewApprovalService(approvalRepo, publisher)

	authHandler := handlers.NewAuthHandler(userService, resolver, jwtSecret)
	approvalHandler := handlers.NewApprovalHandler(approvalService)
	documentHandler := handlers.NewDocumentHandler(approvalService, documents)
	institutionHandler := handlers.NewInstitutionHandler()

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		authHandler.SessionMiddleware,
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Route("/approvals", func(r chi.Router) {
		handlers.ApprovalRouter(r, approvalHandler, documentHandler)
	})
	router.Route("/institution", func(r chi.Router) {
		handlers.InstitutionRouter(r, institutionHandler)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
	}, nil
}

// openBroker connects the configured event broker. An empty backend
// disables event publication entirely.
func openBroker(ctx context.Context, cfg config.MQConfig) (events.Broker, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		return events.NewRabbitBroker(cfg.RabbitMQ)
	case "pubsub":
		return events.NewPubSubBroker(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown MQ backend %q", cfg.Backend)
	}
}

// openStorage connects the configured object storage backend. An empty
// backend disables document uploads.
func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	var backend storage.ObjectStorage
	switch cfg.Backend {
	case "":
		return nil, nil
	case "minio":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		backend = client
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		backend = client
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %q: %w", backend.Bucket(), err)
	}
	return backend, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			log.Printf("server: broker close failed: %v", err)
		}
	}
	return s.httpServer.Close()
}
