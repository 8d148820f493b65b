package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"vision-backend/cmd"
	"vision-backend/internal/api"
	"vision-backend/internal/config"
	"vision-backend/internal/core"
	"vision-backend/internal/core/utils"
	"vision-backend/internal/database"
	"vision-backend/internal/messaging"
	"vision-backend/internal/provider"
	"vision-backend/internal/storage"
	"vision-backend/internal/usage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"
)

const usageQueueCapacity = 1024

func createDatabase(cfg *config.Config) *gorm.DB {
	var db *gorm.DB
	var err error
	if cfg.DatabaseURL != "" {
		db, err = database.NewDatabase(cfg.DatabaseURL)
	} else {
		db, err = database.NewSqliteDatabase(cfg.Root)
	}
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}

func createObjectStore(cfg *config.Config) storage.ObjectStore {
	if cfg.UseS3() {
		store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Failed to create s3 object store: %v", err)
		}
		return store
	}

	store, err := storage.NewLocalObjectStore(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("Failed to create local object store: %v", err)
	}
	return store
}

func createQueue(cfg *config.Config) (messaging.Publisher, messaging.Reciever) {
	if cfg.RabbitMQURL == "" {
		queue := messaging.NewInMemoryQueue(usageQueueCapacity)
		return queue, queue
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to create rabbitmq publisher: %v", err)
	}
	reciever, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to create rabbitmq receiver: %v", err)
	}
	return publisher, reciever
}

func createServer(service *api.BackendService, cfg *config.Config) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		// Leave room for the handler to report its own 504.
		r.Use(middleware.Timeout(cfg.RequestTimeout + 5*time.Second))
	}

	r.Route("/v1", service.AddRoutes)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	destroyOnnx := initOnnxRuntime(cfg.OnnxRuntimeDylib)
	defer destroyOnnx()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating root directory: %v", err)
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(filepath.Join(cfg.Root, cfg.LogFile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatalf("error opening log file: %v", err)
		}
		defer f.Close()

		log.SetOutput(io.MultiWriter(f, os.Stderr))
	}

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port, "pool_workers", cfg.PoolWorkers, "pool_queue_size", cfg.PoolQueueSize)

	db := createDatabase(cfg)
	store := createObjectStore(cfg)

	if cfg.CatalogPath != "" {
		catalog, err := cmd.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			log.Fatalf("Failed to load model catalog: %v", err)
		}
		if err := cmd.InitializeModels(context.Background(), db, store, cfg.ModelBucket, catalog); err != nil {
			log.Fatalf("Failed to initialize models: %v", err)
		}
	}

	publisher, reciever := createQueue(cfg)

	recorder := usage.NewRecorder(db, reciever)
	recorderDone := make(chan struct{})
	go func() {
		recorder.Start()
		close(recorderDone)
	}()

	cacheDir := cfg.ModelCacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(cfg.Root, "models")
	}
	models := provider.NewCatalogProvider(db, store, cfg.ModelBucket, cacheDir, cfg.ModelCacheSize)
	defer models.Close()

	if len(cfg.WarmupModels) > 0 {
		if err := models.Warmup(context.Background(), cfg.WarmupModels, cfg.PoolWorkers); err != nil {
			slog.Warn("some models failed to warm up", "error", err)
		}
	}

	pool := utils.NewPool(cfg.PoolWorkers, cfg.PoolQueueSize)

	sink := usage.NewPublisherSink(publisher)
	pipeline := core.NewPipeline(models, pool, sink)
	server := createServer(api.NewBackendService(db, pipeline, cfg.RequestTimeout, cfg.MaxRequestBytes), cfg)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server did not shut down cleanly", "error", err)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	// ListenAndServe returns as soon as Shutdown starts; in-flight handlers
	// still use the pool and sink until Shutdown returns.
	<-shutdownDone

	pool.Close()

	slog.Info("shutting down usage recorder")
	sink.Close()
	publisher.Close()
	recorder.Stop()
	if cfg.RabbitMQURL == "" {
		// Unacked broker messages are redelivered, in-process ones are drained here.
		<-recorderDone
	}

	slog.Info("server stopped")
}
