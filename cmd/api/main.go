//	@title			MemeLibre API
//	@version		1.0
//	@description	Backend for MemeLibre: publish, browse and moderate memes.
//
//	@host		localhost:3000
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/memelibre/server/internal/config"
	"github.com/memelibre/server/internal/db"
	"github.com/memelibre/server/internal/logging"
	"github.com/memelibre/server/internal/media"
	"github.com/memelibre/server/internal/meme"
	"github.com/memelibre/server/internal/metrics"
	appMiddleware "github.com/memelibre/server/internal/middleware"
	"github.com/memelibre/server/internal/orphan"
	"github.com/memelibre/server/internal/storage"

	_ "github.com/memelibre/server/docs/swagger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	log := logging.New(cfg.AppEnv, cfg.LogLevel)

	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	store, err := storage.New(ctx, cfg.StorageDriver, storage.Options{
		Endpoint:   cfg.StorageEndpoint,
		Region:     cfg.StorageRegion,
		AccessKey:  cfg.StorageAccessKey,
		SecretKey:  cfg.StorageSecretKey,
		Bucket:     cfg.StorageBucket,
		UseSSL:     cfg.StorageUseSSL,
		PublicBase: cfg.StoragePublicBase,
		PublicRead: cfg.StoragePublicRead,
	}, log)
	if err != nil {
		log.Fatalf("object storage init failed: %v", err)
	}
	if cfg.StorageEnsureBucket {
		if err := store.EnsureBucket(ctx); err != nil {
			log.Fatalf("object storage bucket check failed: %v", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		log.Fatalf("metrics registration failed: %v", err)
	}

	var queue orphan.Queue
	if cfg.RedisURL != "" {
		rq, err := orphan.NewRedisQueue(cfg.RedisURL, cfg.OrphanQueueKey)
		if err != nil {
			log.Fatalf("orphan queue init failed: %v", err)
		}
		defer rq.Close()
		if err := rq.Ping(ctx); err != nil {
			// Orphans are still logged without the queue.
			log.WithError(err).Warn("orphan queue unreachable, reports will only be logged")
		}
		queue = rq
	}
	orphans := orphan.NewReporter(log, queue, m)

	// Wire dependencies: repository → publisher → handler
	memeRepo := meme.NewRepository(pool)
	publisher := meme.NewPublisher(meme.Deps{
		Transcoder: media.NewTranscoder(cfg.CompressionQuality),
		Store:      store,
		Records:    memeRepo,
		Orphans:    orphans,
		Metrics:    m,
		Log:        log,
	}, cfg.MaxObjectBytes, cfg.TranscodeConcurrency)
	memeHandler := meme.NewHandler(publisher, memeRepo, store, orphans, cfg.MemesPullLimit, log)

	publishAuth := appMiddleware.OptionalAuth(cfg.JWTSecret)
	if cfg.PublishRequiresAuth {
		publishAuth = appMiddleware.RequireAuth(cfg.JWTSecret)
	}

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	// Swagger UI: available at http://localhost:3000/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/memes", func(r chi.Router) {
			r.Get("/", memeHandler.List)
			r.Get("/{id}", memeHandler.Get)
			r.With(publishAuth).Post("/", memeHandler.Publish)
			r.With(appMiddleware.RequireAuth(cfg.JWTSecret), appMiddleware.RequireAdmin).Delete("/{id}", memeHandler.Delete)
		})
	})

	// Transcoding a large still image can take a while; the write timeout
	// has to cover it.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infof("server listening on :%s (env=%s, storage=%s)", cfg.Port, cfg.AppEnv, cfg.StorageDriver)
		log.Infof("swagger UI at http://localhost:%s/swagger/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Info("shutting down gracefully...")
	publisher.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	log.Info("server stopped")
}
