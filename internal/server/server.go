package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goblog/apiserver/config"
	"github.com/goblog/apiserver/internal/db"
	"github.com/goblog/apiserver/internal/handlers"
	"github.com/goblog/apiserver/internal/mail"
	"github.com/goblog/apiserver/internal/mq"
	"github.com/goblog/apiserver/internal/services"
	"github.com/goblog/apiserver/internal/storage"
	"github.com/goblog/apiserver/internal/store"
	"github.com/goblog/apiserver/internal/token"
	"github.com/rs/zerolog"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mqBackend  mq.Backend
}

// New constructs a Server: opens the database, selects the mail and media
// backends from config, and wires routes.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.Auth.AccessSecret == "" || cfg.Auth.RefreshSecret == "" {
		return nil, errors.New("SECRET_KEY and REFRESH_SECRET_KEY are required")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "server").Logger()

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mailer, mqBackend, err := buildMailer(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	media, err := buildMedia(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	accessIssuer := token.NewIssuer(cfg.Auth.AccessSecret, cfg.Auth.Algorithm, cfg.Auth.AccessLifetime)
	refreshIssuer := token.NewIssuer(cfg.Auth.RefreshSecret, cfg.Auth.Algorithm, cfg.Auth.RefreshLifetime)
	accessVerifier := token.NewVerifier(cfg.Auth.AccessSecret)
	refreshVerifier := token.NewVerifier(cfg.Auth.RefreshSecret)

	userRepo := store.NewUserRepository(dbConn)
	postRepo := store.NewPostRepository(dbConn)
	categoryRepo := store.NewCategoryRepository(dbConn)
	tagRepo := store.NewTagRepository(dbConn)

	userService := services.NewUserService(userRepo, mailer, accessIssuer, refreshIssuer, refreshVerifier, cfg.BaseURL, logger)
	postService := services.NewPostService(postRepo, media)
	categoryService := services.NewCategoryService(categoryRepo)
	tagService := services.NewTagService(tagRepo)

	authHandler := handlers.NewAuthHandler(userService, accessVerifier)
	requireAuth := authHandler.RequireAuth

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.StripSlashes,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Group(func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Route("/posts", func(r chi.Router) {
		handlers.PostRouter(r, postService, requireAuth)
	})
	router.Route("/categories", func(r chi.Router) {
		handlers.CategoryRouter(r, categoryService, requireAuth)
	})
	router.Route("/tags", func(r chi.Router) {
		handlers.TagRouter(r, tagService, requireAuth)
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
		mqBackend:  mqBackend,
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
	if s.mqBackend != nil {
		_ = s.mqBackend.Close()
	}
	return s.httpServer.Close()
}

// buildMailer selects the outbound mail path. With a broker configured the
// server only publishes; delivery belongs to the mailworker command.
func buildMailer(ctx context.Context, cfg config.Config) (mail.Mailer, mq.Backend, error) {
	switch cfg.MailQueue.Backend {
	case "rabbitmq":
		backend, err := mq.NewRabbitMQClient(cfg.MailQueue.RabbitMQ)
		if err != nil {
			return nil, nil, err
		}
		return mail.NewQueueMailer(backend, cfg.MailQueue.Channel), backend, nil
	case "pubsub":
		backend, err := mq.NewPubSubClient(ctx, cfg.MailQueue.PubSub)
		if err != nil {
			return nil, nil, err
		}
		return mail.NewQueueMailer(backend, cfg.MailQueue.Channel), backend, nil
	case "":
		return mail.NewSMTPMailer(cfg.SMTP), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown mail queue backend %q", cfg.MailQueue.Backend)
	}
}

// buildMedia selects the cover image store; nil disables cover uploads.
func buildMedia(ctx context.Context, cfg config.Config) (storage.ObjectStorage, error) {
	switch cfg.Media.Backend {
	case "minio":
		client, err := storage.NewMinioClient(cfg.Media.Minio)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return client, nil
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.Media.GCS)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return client, nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown media backend %q", cfg.Media.Backend)
	}
}
