package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"certifai/api/internal/anchor"
	"certifai/api/internal/app"
	"certifai/api/internal/authpw"
	"certifai/api/internal/blob"
	"certifai/api/internal/config"
	"certifai/api/internal/draft"
	"certifai/api/internal/email"
	"certifai/api/internal/export"
	"certifai/api/internal/gitrepo"
	"certifai/api/internal/logging"
	"certifai/api/internal/search"
	"certifai/api/internal/session"
	"certifai/api/internal/store"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	err = run(cfg, logger)
	if err != nil {
		logger.Error("api stopped", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, logger); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return fmt.Errorf("create repos dir: %w", err)
	}

	dataStore := store.NewPostgresStore(db)
	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		AppURL:   cfg.AppURL,
	})
	if !mailer.IsConfigured() {
		logger.Info("SMTP not configured, reset tokens are returned in responses")
	}

	deps := app.Dependencies{
		Store:    dataStore,
		Git:      gitrepo.New(cfg.ReposDir),
		Accounts: authpw.NewService(dataStore, mailer, logger),
		Exporter: export.NewService(logger),
		Mailer:   mailer,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
	} else {
		logger.Info("using PostgreSQL for refresh token storage")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	searchService := search.NewService(meiliClient, search.NewPgFTS(db), logger)
	defer searchService.Close()
	go searchService.ReindexAllFromPG(ctx)
	deps.Search = searchService

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobStore, err := blob.NewMinioStore(ctx, blob.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, logger)
		if err != nil {
			logger.Warn("object storage disabled", zap.Error(err))
		} else {
			deps.Blob = blobStore
		}
	}

	if strings.TrimSpace(cfg.LLMAPIKey) != "" {
		client := draft.NewChatClient(draft.ClientConfig{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: cfg.LLMTimeout,
		}, logger)
		deps.Drafts = draft.NewGenerator(client, logger)
	} else {
		logger.Info("LLM_API_KEY not set, draft generation disabled")
	}

	if cfg.ChainEnabled() {
		ethAnchor, err := anchor.Dial(ctx, cfg.ChainRPCURL, cfg.ChainPrivateKey, cfg.ChainID, logger)
		if err != nil {
			logger.Warn("chain anchoring disabled", zap.Error(err))
		} else {
			defer ethAnchor.Close()
			logger.Info("chain anchoring enabled", zap.String("address", ethAnchor.Address()), zap.Int64("chain_id", cfg.ChainID))
			deps.Anchor = ethAnchor
		}
	}

	service := app.New(cfg, deps, logger)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("CertifAI API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	return nil
}
