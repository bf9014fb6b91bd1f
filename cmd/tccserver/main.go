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

	"github.com/go-chi/chi/v5"

	"github.com/bracketops/tournament-core/config"
	"github.com/bracketops/tournament-core/db"
	"github.com/bracketops/tournament-core/events"
	"github.com/bracketops/tournament-core/handlers"
	"github.com/bracketops/tournament-core/middleware"
	"github.com/bracketops/tournament-core/realtime"
	"github.com/bracketops/tournament-core/repositories"
	"github.com/bracketops/tournament-core/routes"
	"github.com/bracketops/tournament-core/services"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(2)
	}

	// Rebuild the logger at the configured level and make it the process
	// default so the handler helpers share it.
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("database", cfg.DatabasePath),
	)

	dbConn, err := db.Connect(cfg.DatabasePath, 5*time.Second)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	if err := db.Migrate(context.Background(), dbConn); err != nil {
		logger.Error("failed to migrate schema", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database ready")

	bus := events.NewBus()
	hub := realtime.NewHub(bus, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	locks := services.NewLockTable()

	userRepo := repositories.NewSqliteUserRepository(dbConn)
	tournamentRepo := repositories.NewSqliteTournamentRepository(dbConn)
	participantRepo := repositories.NewSqliteParticipantRepository(dbConn)
	matchRepo := repositories.NewSqliteMatchRepository(dbConn)
	stationRepo := repositories.NewSqliteStationRepository(dbConn)
	historyRepo := repositories.NewSqliteHistoryRepository(dbConn)
	waitlistRepo := repositories.NewSqliteWaitlistRepository(dbConn)
	deploymentRepo := repositories.NewSqliteDeploymentRepository(dbConn)

	authService := services.NewAuthService(userRepo, cfg.JWTSecretKey, cfg.TokenTTL)
	tournamentService := services.NewTournamentService(
		dbConn, tournamentRepo, participantRepo, matchRepo, stationRepo, historyRepo, bus, locks, logger)
	participantService := services.NewParticipantService(
		dbConn, tournamentRepo, participantRepo, waitlistRepo, bus, locks, logger)
	matchService := services.NewMatchService(
		dbConn, tournamentRepo, participantRepo, matchRepo, stationRepo, historyRepo, bus, locks, logger)
	stationService := services.NewStationService(
		dbConn, tournamentRepo, stationRepo, matchRepo, bus, locks, logger)
	signupService := services.NewSignupService(
		dbConn, tournamentRepo, participantRepo, waitlistRepo, bus, locks, logger)
	deploymentService := services.NewDeploymentService(tournamentRepo, deploymentRepo, bus, logger)

	signupLimiter := middleware.NewRateLimiter(cfg.SignupRatePerSecond, cfg.SignupBurst, logger)
	defer signupLimiter.Stop()

	router := chi.NewRouter()
	routes.SetupRoutes(router, logger, routes.Handlers{
		Auth:         handlers.NewAuthHandler(authService),
		Tournaments:  handlers.NewTournamentHandler(tournamentService),
		Matches:      handlers.NewMatchHandler(matchService),
		Participants: handlers.NewParticipantHandler(participantService),
		Stations:     handlers.NewStationHandler(stationService),
		Signup:       handlers.NewSignupHandler(signupService),
		Deploy:       handlers.NewDeployHandler(deploymentService),
		WebSocket:    handlers.NewWebSocketHandler(hub, authService, logger),
		Health:       handlers.NewHealthHandler(dbConn),
	}, middleware.Authenticate(authService), signupLimiter.Middleware, cfg.AllowedOrigins)

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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}

	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}

		// Stopping the hub closes every websocket after HTTP drains.
		stopHub()
	}

	logger.Info("server exited")
}
