package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/quiz-duel/config"
	"github.com/Dosada05/quiz-duel/db"
	"github.com/Dosada05/quiz-duel/handlers"
	"github.com/Dosada05/quiz-duel/realtime"
	"github.com/Dosada05/quiz-duel/repositories"
	api "github.com/Dosada05/quiz-duel/routes"
	"github.com/Dosada05/quiz-duel/services"
	"github.com/Dosada05/quiz-duel/storage"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 15 * time.Second

type stores struct {
	matches   repositories.MatchRepository
	queue     repositories.QueueRepository
	users     repositories.UserRepository
	questions repositories.QuestionRepository
}

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort), slog.Bool("postgres", cfg.DatabaseURL != ""))

	st, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	if err := applySeed(ctx, cfg.QuestionSeedFile, st, logger); err != nil {
		return err
	}

	// Инициализация WebSocket Hub
	wsHub := realtime.NewHub(logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go wsHub.Run(hubCtx)
	logger.Info("WebSocket Hub started")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := services.NewMetrics(registry)

	var archiver services.ResultArchiver
	if cfg.R2.Enabled() {
		uploader, err := storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			SecretAccessKey: cfg.R2.SecretAccessKey,
			BucketName:      cfg.R2.BucketName,
			PublicBaseURL:   cfg.R2.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("initialize Cloudflare R2 uploader: %w", err)
		}
		archiver = storage.NewResultArchiver(uploader, logger)
		logger.Info("Cloudflare R2 result archive enabled", slog.String("bucket", cfg.R2.BucketName))
	}

	// Инициализация сервисов
	matchmakingService := services.NewMatchmakingService(st.matches, st.queue, st.users, wsHub, metrics, logger)
	matchService := services.NewMatchService(st.matches, st.questions, st.users, wsHub, archiver, metrics, logger)
	logger.Info("Services initialized")

	if cfg.MatchTTL > 0 {
		janitor, err := services.NewJanitor(matchmakingService, cfg.MatchTTL, cfg.ExpirySweepInterval, logger)
		if err != nil {
			return fmt.Errorf("initialize expiry janitor: %w", err)
		}
		janitor.Start()
		defer func() {
			if err := janitor.Shutdown(); err != nil {
				logger.Error("failed to stop expiry janitor", slog.Any("error", err))
			}
		}()
	}

	// Инициализация обработчиков HTTP
	matchHandler := handlers.NewMatchHandler(matchmakingService, matchService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, cfg.CORSAllowedOrigins, logger)

	router := chi.NewRouter()
	api.SetupRoutes(router, api.Options{
		JWTSecretKey:       cfg.JWTSecretKey,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	}, matchHandler, webSocketHandler)
	logger.Info("Routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("server stopped gracefully")
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("server shutdown complete")
	}

	return nil
}

// openStores подключает Postgres или, без DATABASE_URL, хранилища в памяти.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL is empty, using in-memory stores")
		return &stores{
			matches:   repositories.NewMemoryMatchRepository(),
			queue:     repositories.NewMemoryQueueRepository(),
			users:     repositories.NewMemoryUserRepository(),
			questions: repositories.NewMemoryQuestionRepository(),
		}, func() {}, nil
	}

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("database connection established")

	closeDB := func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}

	if err := db.ApplyMigrations(ctx, dbConn); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("database migrations applied")

	return postgresStores(dbConn), closeDB, nil
}

func postgresStores(dbConn *sql.DB) *stores {
	return &stores{
		matches:   repositories.NewPostgresMatchRepository(dbConn),
		queue:     repositories.NewPostgresQueueRepository(dbConn),
		users:     repositories.NewPostgresUserRepository(dbConn),
		questions: repositories.NewPostgresQuestionRepository(dbConn),
	}
}

// applySeed загружает пользователей и вопросы из YAML. Отсутствующий файл пропускается.
func applySeed(ctx context.Context, path string, st *stores, logger *slog.Logger) error {
	if path == "" {
		return nil
	}

	seed, err := repositories.LoadSeed(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("seed file not found, skipping", slog.String("path", path))
			return nil
		}
		return fmt.Errorf("load seed: %w", err)
	}

	if err := seed.Apply(ctx, st.users, st.questions); err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	logger.Info("seed applied",
		slog.String("path", path),
		slog.Int("users", len(seed.Users)),
		slog.Int("questions", len(seed.Questions)),
	)
	return nil
}
