package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bugtrail/apiserver/config"
	"github.com/bugtrail/apiserver/internal/db"
	"github.com/bugtrail/apiserver/internal/handlers"
	"github.com/bugtrail/apiserver/internal/mq"
	"github.com/bugtrail/apiserver/internal/services"
	"github.com/bugtrail/apiserver/internal/storage"
	"github.com/bugtrail/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	broker, err := openBroker(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	objectStore, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		if broker != nil {
			_ = broker.Close()
		}
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)

	var publisher services.EventPublisher
	if broker != nil {
		publisher = broker
	}
	userService := services.NewUserService(userRepo, publisher)

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = dbConn.Close()
		if broker != nil {
			_ = broker.Close()
		}
		return nil, errors.New("JWT_SECRET is required")
	}

	resolver := handlers.NewJWTResolver(jwtSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, resolver, jwtSecret)
		if objectStore != nil {
			handlers.AvatarRouter(r, objectStore, resolver)
		}
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
		_ = s.broker.Close()
	}
	return s.httpServer.Close()
}

// openBroker constructs the configured event broker, or nil when event
// publishing is disabled.
func openBroker(ctx context.Context, cfg config.MQConfig) (*mq.MQ, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "":
		return nil, nil
	case "rabbitmq":
		backend, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mq.New(backend), nil
	case "pubsub":
		backend, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return mq.New(backend), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// openStorage constructs the configured avatar storage, or nil when
// avatars are disabled.
func openStorage(ctx context.Context, cfg config.StorageConfig) (*storage.Storage, error) {
	var backend storage.ObjectStorage
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
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

	wrapped := storage.NewStorage(backend)
	if err := wrapped.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return wrapped, nil
}
