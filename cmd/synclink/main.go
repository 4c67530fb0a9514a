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

	"github.com/joho/godotenv"

	"github.com/fr0stylo/synclink/internal/adapters/sqlstore"
	"github.com/fr0stylo/synclink/internal/config"
	"github.com/fr0stylo/synclink/internal/credentials"
	"github.com/fr0stylo/synclink/internal/db"
	"github.com/fr0stylo/synclink/internal/idempotency"
	"github.com/fr0stylo/synclink/internal/oauth"
	"github.com/fr0stylo/synclink/internal/observability"
	"github.com/fr0stylo/synclink/internal/providers"
	"github.com/fr0stylo/synclink/internal/scheduler"
	"github.com/fr0stylo/synclink/internal/server"
	"github.com/fr0stylo/synclink/internal/server/routes"
	"github.com/fr0stylo/synclink/internal/status"
	"github.com/fr0stylo/synclink/internal/webhooks"
)

func Run() error {
	baseHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	log := slog.New(observability.WrapSlogHandler(baseHandler))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.IsLocalDevelopment() && cfg.Auth.SessionSecret == "synclink-local-dev" {
		slog.Warn("SYNCLINK_SESSION_SECRET not set, using local development fallback")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.SetupOpenTelemetry(ctx, log, observability.OpenTelemetryConfig{
		Enabled:           cfg.Observability.Enabled,
		OTLPEndpoint:      cfg.Observability.OTLPEndpoint,
		OTLPTraceHeaders:  cfg.Observability.OTLPTraceHeaders,
		OTLPMetricHeaders: cfg.Observability.OTLPMetricHeaders,
		ServiceName:       cfg.Observability.ServiceName,
		ServiceVer:        cfg.Observability.ServiceVer,
		SamplingRatio:     cfg.Observability.SamplingRatio,
		MetricsConsole:    cfg.Observability.MetricsConsole,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Error("Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	database, err := db.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()
	if cfg.Database.LogTiming {
		go logSlowQueries(ctx, log, database)
	}

	codec, err := credentials.NewCodec(cfg.OAuth.CredentialsKey)
	if err != nil {
		return fmt.Errorf("failed to configure credential encryption: %w", err)
	}
	if !codec.Encrypted() {
		slog.Warn("SYNCLINK_CREDENTIALS_KEY not set, credentials are stored unencrypted")
	}
	store := sqlstore.NewStore(database, codec)

	dedupe, err := idempotency.Open(ctx, cfg.Webhooks.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to open dedupe store: %w", err)
	}
	defer func() {
		if err := dedupe.Close(); err != nil {
			slog.Error("Failed to close dedupe store", "error", err)
		}
	}()

	registry := providers.NewRegistry(providerSettings(cfg), observability.NewHTTPClient(cfg.OAuth.ProviderTimeout))
	manager, err := oauth.NewManager(registry, oauth.Stores{
		Connections:   store,
		Calendars:     store,
		Subscriptions: store,
	}, oauth.Config{
		PublicURL:   cfg.OAuth.PublicURL,
		StateSecret: cfg.OAuth.StateSecret,
		StateMaxAge: cfg.OAuth.StateMaxAge,
		RefreshSkew: cfg.OAuth.RefreshSkew,
		Codec:       codec,
		Nonces:      dedupe,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("failed to build connection manager: %w", err)
	}

	router := webhooks.NewRouter(store, store, dedupe, manager, webhooks.Config{
		Secrets:     webhookSecrets(cfg),
		VerifyToken: cfg.Webhooks.VerifyToken,
		DedupeTTL:   cfg.Webhooks.DedupeTTL,
		Logger:      log,
	})

	syncer, err := scheduler.New(store, store, manager, registry, scheduler.Config{
		Interval:         cfg.Sync.Interval,
		Workers:          cfg.Sync.Workers,
		FailureThreshold: cfg.Sync.FailureThreshold,
		TaskTimeout:      cfg.Sync.TaskTimeout,
		HistorySize:      cfg.Sync.HistorySize,
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("failed to build sync scheduler: %w", err)
	}
	if cfg.Sync.AutoStart {
		if err := syncer.Start(); err != nil {
			return fmt.Errorf("failed to start sync scheduler: %w", err)
		}
	}

	routes.ConfigureAuth(routes.AuthConfig{
		SessionKey:         cfg.Auth.SessionSecret,
		GitHubClientID:     cfg.Auth.GitHubClientID,
		GitHubClientSecret: cfg.Auth.GitHubClientSecret,
		GitHubCallbackURL:  cfg.Auth.GitHubCallbackURL,
		SecureCookies:      cfg.Auth.SecureCookie,
	})

	srv := server.New(log)
	srv.RegisterRouter(routes.NewAuthRoutes(cfg.IsLocalDevelopment()))
	srv.RegisterRouter(routes.NewIntegrationRoutes(manager, status.NewAggregator(store), store, cfg.OAuth.SettingsURL, log))
	srv.RegisterRouter(routes.NewSyncRoutes(syncer))
	srv.RegisterRouter(routes.NewWebhookRoutes(router, cfg.OAuth.PublicURL))
	srv.RegisterRouter(routes.NewHealthRoutes(database))

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("Starting server", "port", cfg.Server.Port, "public_url", cfg.OAuth.PublicURL, "webhook_providers", router.Providers())
		errCh <- srv.Start(addr)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		slog.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shutdown server", "error", err)
	}
	if err := syncer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Sync tasks still running at shutdown", "error", err)
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}

func main() {
	if err := Run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func providerSettings(cfg config.Config) map[string]providers.Settings {
	out := make(map[string]providers.Settings, len(cfg.Providers))
	for id, p := range cfg.Providers {
		out[id] = providers.Settings{
			ClientID:      p.ClientID,
			ClientSecret:  p.ClientSecret,
			WebhookSecret: p.WebhookSecret,
			AuthURL:       p.AuthURL,
			TokenURL:      p.TokenURL,
			APIBaseURL:    p.APIBaseURL,
		}
	}
	return out
}

func webhookSecrets(cfg config.Config) map[string]string {
	out := make(map[string]string)
	for id, p := range cfg.Providers {
		if p.WebhookSecret != "" {
			out[id] = p.WebhookSecret
		}
	}
	return out
}

// logSlowQueries reports the slowest sqlc queries once a minute.
func logSlowQueries(ctx context.Context, log *slog.Logger, database *db.Database) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, stat := range database.SlowQueries(5) {
			log.Info("db_slow_query",
				"query", stat.Name,
				"calls", stat.Calls,
				"errors", stat.Errors,
				"p50_ms", stat.P50.Milliseconds(),
				"p95_ms", stat.P95.Milliseconds(),
				"max_ms", stat.Max.Milliseconds(),
			)
		}
	}
}
