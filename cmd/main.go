package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/result-integrity/config"
	"github.com/Dosada05/result-integrity/db"
	"github.com/Dosada05/result-integrity/elo"
	"github.com/Dosada05/result-integrity/handlers"
	"github.com/Dosada05/result-integrity/leaderboard"
	"github.com/Dosada05/result-integrity/live"
	"github.com/Dosada05/result-integrity/middleware"
	"github.com/Dosada05/result-integrity/models"
	"github.com/Dosada05/result-integrity/repositories"
	api "github.com/Dosada05/result-integrity/routes"
	"github.com/Dosada05/result-integrity/services"
	"github.com/Dosada05/result-integrity/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Хранилище файлов-доказательств (Cloudflare R2)
	cloudflareUploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Cloudflare R2 uploader initialized")

	// WebSocket Hub: комната на турнир
	wsHub := live.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket Hub started")

	// Инициализация репозиториев
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	resultRepo := repositories.NewPostgresResultRepository(dbConn)
	ratingRepo := repositories.NewPostgresEloRatingRepository(dbConn)
	leaderboardRepo := repositories.NewPostgresLeaderboardRepository(dbConn)
	auditRepo := repositories.NewPostgresAuditRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	logger.Info("Repositories initialized")

	// Инициализация сервисов
	authService := services.NewAuthService(userRepo)
	auditService := services.NewAuditService(auditRepo)
	notifier := services.NewEmailNotifier(cfg, logger)

	kFactors := make(map[models.MatchImportance]int, len(cfg.KFactorByMatch))
	for importance, k := range cfg.KFactorByMatch {
		kFactors[models.MatchImportance(importance)] = k
	}

	pipelineCfg := services.PipelineConfig{
		Bounds:          elo.Bounds{Min: cfg.EloMin, Max: cfg.EloMax},
		InitialElo:      cfg.EloInitial,
		KFactors:        kFactors,
		Policy:          leaderboard.Policy{Tiebreakers: cfg.LeaderboardTiebreakers},
		DisputeWindow:   cfg.DisputeWindow,
		AlertRecipients: cfg.AlertEmails,
	}

	coordinator := services.NewCoordinator(
		dbConn,
		resultRepo,
		ratingRepo,
		leaderboardRepo,
		tournamentRepo,
		auditService,
		notifier,
		wsHub,
		logger,
		pipelineCfg,
	)

	resultService := services.NewResultService(
		resultRepo,
		tournamentRepo,
		auditService,
		notifier,
		cloudflareUploader,
		wsHub,
		logger,
		cfg.DisputeWindow,
	)
	leaderboardService := services.NewLeaderboardService(leaderboardRepo, coordinator)
	logger.Info("Services initialized")

	// Инициализация обработчиков HTTP
	authHandler := handlers.NewAuthHandler(authService, cfg.JWTSecretKey)
	resultHandler := handlers.NewResultHandler(resultService, coordinator)
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService)
	auditHandler := handlers.NewAuditHandler(auditService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, logger)
	healthHandler := handlers.NewHealthHandler(dbConn)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		middleware.NewAuthenticator(cfg.JWTSecretKey),
		authHandler,
		resultHandler,
		leaderboardHandler,
		auditHandler,
		webSocketHandler,
		healthHandler,
	)
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
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

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
