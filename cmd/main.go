package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kkkkikiki/loyalty/internal/api"
	"github.com/kkkkikiki/loyalty/internal/config"
	"github.com/kkkkikiki/loyalty/internal/database"
	"github.com/kkkkikiki/loyalty/internal/email"
	"github.com/kkkkikiki/loyalty/internal/logging"
	"github.com/kkkkikiki/loyalty/internal/loyalty"
	"github.com/kkkkikiki/loyalty/internal/repository"
	"github.com/kkkkikiki/loyalty/internal/repository/memory"
	"github.com/kkkkikiki/loyalty/internal/service"
	"github.com/kkkkikiki/loyalty/internal/shopify"
)

func main() {
	ctx := context.Background()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.App)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting loyalty service",
		zap.String("database", cfg.Database.Driver),
		zap.String("email", cfg.Email.Provider))

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	tiers, err := loyalty.LoadProgram(cfg.Loyalty.ProgramFile)
	if err != nil {
		logger.Fatal("failed to load loyalty program", zap.Error(err))
	}

	deps := service.Deps{
		Store:    store,
		Commerce: shopify.New(cfg.Shopify),
		Tiers:    tiers,
		Policy: loyalty.Policy{
			EarnPointsPerUnit:   cfg.Loyalty.EarnPointsPerUnit,
			RedeemPointsPerUnit: cfg.Loyalty.RedeemPointsPerUnit,
			MinRedeemPoints:     cfg.Loyalty.MinRedeemPoints,
		},
		Loyalty: cfg.Loyalty,
		Auth:    cfg.Auth,
		Email:   cfg.Email,
		Logger:  logger,
	}
	switch cfg.Email.Provider {
	case "resend":
		resend := email.NewResendClient(cfg.Email.ResendBaseURL, cfg.Email.ResendAPIKey, cfg.Email.From, cfg.Email.AudienceID)
		deps.Mailer = resend
		if cfg.Email.AudienceID != "" {
			deps.Audience = resend
		}
	case "smtp":
		deps.Mailer = email.NewSMTPSender(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUser, cfg.Email.SMTPPassword, cfg.Email.From)
	default:
		deps.Mailer = email.Discard{Logger: logger}
	}
	if cfg.Shopify.WebhookSecret == "" {
		logger.Warn("order webhook signatures are not verified, set SHOPIFY_WEBHOOK_SECRET")
	}

	handler := api.NewHandler(service.New(deps), store, logger, apiOptions(cfg))

	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(api.NewRouter(handler), &http2.Server{
			MaxConcurrentStreams: 250,
		}),
	}

	go func() {
		logger.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("server exited gracefully")
}

// apiOptions maps configuration onto the HTTP surface. Error details are only
// exposed when explicitly enabled, whatever the environment.
func apiOptions(cfg *config.Config) api.Options {
	return api.Options{
		WebhookSecret:      cfg.Shopify.WebhookSecret,
		ExposeErrorDetails: cfg.App.ExposeErrorDetails,
		CORSOrigin:         cfg.App.CORSOrigin,
	}
}

// openStore returns the configured ledger store and its cleanup function.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func(), error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), func() {}, nil
	}

	db, err := database.NewDB(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return repository.NewPostgresStore(db.Postgres), func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing database connections", zap.Error(err))
		}
	}, nil
}
