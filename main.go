package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"opsmind/backend/features/chat"
	"opsmind/backend/features/ingest"
	"opsmind/backend/internal/adapter/gemini"
	"opsmind/backend/internal/config"
	"opsmind/backend/internal/embedding"
	"opsmind/backend/internal/logger"
	"opsmind/backend/internal/middleware"
	"opsmind/backend/internal/retrieval"
	"opsmind/backend/internal/vector"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
)

func main() {
	// Initialize structured logger
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Database Connection
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("failed to open db connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Retry connection
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(retryDelay)
	}

	if err := db.Ping(); err != nil {
		slog.Error("failed to ping db after retries", "error", err)
		os.Exit(1)
	}

	// 3. Run Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		slog.Error("failed to create migration driver", "error", err)
		os.Exit(1)
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		slog.Error("failed to create migration instance", "error", err)
		os.Exit(1)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied successfully")

	// 4. Embedder selection
	var embedder retrieval.Embedder
	switch cfg.EmbeddingProvider {
	case "gemini":
		ge, err := gemini.NewEmbedder(context.Background(), cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
		if err != nil {
			slog.Error("failed to create gemini embedder", "error", err)
			os.Exit(1)
		}
		defer ge.Close()
		embedder = ge
	default:
		embedder = embedding.NewLocal(cfg.EmbeddingDimensions)
	}
	slog.Info("embedder initialized", "provider", cfg.EmbeddingProvider, "dimensions", cfg.EmbeddingDimensions)

	// 5. Generator (degraded mode when absent)
	var generator chat.Generator
	if cfg.GeminiAPIKey != "" {
		gen, err := gemini.NewGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GenerationModel)
		if err != nil {
			slog.Warn("failed to create generator, answers will be degraded", "error", err)
		} else {
			defer gen.Close()
			generator = gen
		}
	} else {
		slog.Warn("GEMINI_API_KEY not set, answers will be degraded")
	}

	// 6. NSQ Producer (optional)
	var publisher ingest.EventPublisher
	if cfg.NSQDHost != "" {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			slog.Warn("failed to create NSQ producer, ingest events disabled", "error", err)
		} else {
			defer producer.Stop()
			publisher = producer
		}
	}

	// 7. Services
	vecStore := vector.NewPostgresStore(db)
	chatRepo := chat.NewPostgresRepo(db)

	ingestService := ingest.NewService(vecStore, chatRepo, embedder, publisher, ingest.Config{
		ChunkSize:   cfg.ChunkSize,
		Overlap:     cfg.ChunkOverlap,
		Dimensions:  cfg.EmbeddingDimensions,
		Concurrency: cfg.IngestionConcurrency,
	})
	ingestHandler := ingest.NewHandler(ingestService, cfg.MaxUploadSizeMB)

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	retrievalService := retrieval.NewService(embedder, vecStore, cfg.RetrievalTopK, queryLogger)
	streamer := chat.NewAnswerStreamer(generator, time.Duration(cfg.DegradedDelayMS)*time.Millisecond)
	chatService := chat.NewService(retrievalService, streamer, chatRepo, vecStore)
	chatHandler := chat.NewHandler(chatService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Owner-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	wrap := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(middleware.Identity(enableCORS(h)))
	}

	// Routes
	http.Handle("POST /documents", wrap(ingestHandler.Upload))
	http.Handle("POST /chat", wrap(chatHandler.Ask))
	http.Handle("GET /chat/history", wrap(chatHandler.History))

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	slog.Info("server starting", "port", cfg.ServerPort)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.ServerPort), nil); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
