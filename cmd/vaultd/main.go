package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/vaultkeeper/vaultd/internal/auth"
	"github.com/vaultkeeper/vaultd/internal/background"
	"github.com/vaultkeeper/vaultd/internal/config"
	"github.com/vaultkeeper/vaultd/internal/database"
	"github.com/vaultkeeper/vaultd/internal/handlers"
	"github.com/vaultkeeper/vaultd/internal/middleware"
	"github.com/vaultkeeper/vaultd/internal/repositories"
	"github.com/vaultkeeper/vaultd/internal/routes"
	"github.com/vaultkeeper/vaultd/internal/services"
	pkglogger "github.com/vaultkeeper/vaultd/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	userRepo := repositories.NewUserRepository(db)
	credentialRepo := repositories.NewCredentialRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	totpManager := auth.NewTOTPManager(cfg.Auth.TOTPIssuer)
	federatedVerifier := auth.NewFederatedVerifier(cfg.Auth.FederatedSecret)

	cipher, err := auth.NewCredentialCipher(cfg.Vault.Pepper)
	if err != nil {
		logger.Error("failed to initialize credential cipher", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := pkglogger.NewAuditLogger(logger)
	auditService := services.NewAuditService(eventRepo, auditLogger, logger)

	var emailService services.EmailService
	if cfg.Email.Enabled {
		sesService, err := services.NewAWSSESEmailService(
			cfg.Email.AWSRegion,
			cfg.Email.FromAddress,
			cfg.Email.BaseURL,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		emailService = sesService
	}

	sessionService := services.NewSessionService(
		userRepo,
		tokenManager,
		totpManager,
		federatedVerifier,
		auditService,
		emailService,
		logger,
		services.SessionConfig{
			MaxLoginAttempts:  cfg.Auth.MaxLoginAttempts,
			LockoutWindow:     cfg.Auth.LockoutWindow,
			InactivityTimeout: cfg.Auth.InactivityTimeout,
		},
	)
	credentialService := services.NewCredentialService(credentialRepo, sessionService, cipher, auditService, logger)

	// Decrypted state must not outlive the session.
	sessionService.SetLogoutHook(credentialService.Reset)

	retentionManager := background.NewRetentionManager(
		eventRepo, logger, cfg.Vault.AuditPruneInterval, cfg.Vault.AuditRetention,
	)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middleware.CORS(&middleware.CORSConfig{AllowedOrigins: cfg.Server.AllowedOrigins}))
	router.Use(middleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Handlers{
		Auth:       handlers.NewAuthHandler(sessionService),
		TwoFactor:  handlers.NewTwoFactorHandler(sessionService),
		Credential: handlers.NewCredentialHandler(credentialService),
		Audit:      handlers.NewAuditHandler(auditService),
		Passgen:    handlers.NewPassgenHandler(),
	}, tokenManager, sessionService)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	retentionCtx, retentionCancel := context.WithCancel(context.Background())
	defer retentionCancel()
	go retentionManager.Start(retentionCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	retentionCancel()
	retentionManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	// Drain pending audit writes before exiting.
	auditService.Flush()

	logger.Info("server stopped gracefully")
}
