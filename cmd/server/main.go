package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/pagegate/internal/adapter/graph"
	"github.com/pscheid92/pagegate/internal/adapter/httpserver"
	"github.com/pscheid92/pagegate/internal/adapter/messenger"
	"github.com/pscheid92/pagegate/internal/adapter/metrics"
	"github.com/pscheid92/pagegate/internal/adapter/redis"
	"github.com/pscheid92/pagegate/internal/app"
	"github.com/pscheid92/pagegate/internal/platform/config"
	"github.com/pscheid92/pagegate/internal/platform/logging"
	"github.com/pscheid92/pagegate/internal/platform/version"
	"github.com/pscheid92/pagegate/internal/session"
)

const (
	shutdownTimeout       = 10 * time.Second
	sessionEvictEvery     = time.Minute
	redisConnectTimeout   = 10 * time.Second
	shutdownDispatchGrace = 30 * time.Second
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(cfg *config.Config, redisMetrics *metrics.RedisMetrics, breakerMetrics *metrics.CircuitBreakerMetrics) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, profiles are not cached and redeliveries are not deduplicated")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, redis.WithMetrics(redisMetrics), redis.WithBreakerMetrics(breakerMetrics))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// printBanner lists where the bot can be reached.
func printBanner(cfg *config.Config) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Printf("    %s", version.Name)
	gray.Printf(" %s\n\n", version.Version)

	green.Print("    ▶ ")
	fmt.Printf("Port:      %s\n", cfg.Port)
	if cfg.AppURL != "" {
		green.Print("    ▶ ")
		fmt.Printf("Webhook:   %s\n", cfg.WebhookURL())
	}
	for _, pageID := range cfg.PageIDList() {
		green.Print("    ▶ ")
		fmt.Print("Test at:   ")
		cyan.Printf("https://m.me/%s\n", pageID)
	}
	if !cfg.PersonasConfigured() {
		yellow.Println("\n    No personas configured. Run `provision -mode=personas` and set the printed PERSONA_* variables.")
	}
	fmt.Println()
}

func runGracefulShutdown(srv *httpserver.Server, dispatcher *app.Dispatcher, sessions *session.Registry, stopEviction func()) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		drained := make(chan struct{})
		go func() {
			dispatcher.Wait()
			sessions.WaitEnrichment()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(shutdownDispatchGrace):
			slog.Warn("Timed out waiting for in-flight dispatches")
		}

		stopEviction()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "pages", len(cfg.PageIDList()))

	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	webhookMetrics := metrics.NewWebhookMetrics(reg)
	breakerMetrics := metrics.NewCircuitBreakerMetrics(reg)

	graphClient := graph.New(graph.Config{
		APIURL:         cfg.APIURL(),
		AppID:          cfg.AppID,
		AppAccessToken: cfg.AppAccessToken(),
		VerifyToken:    cfg.VerifyToken,
		WebhookURL:     cfg.WebhookURL(),
		TargetAppID:    cfg.TargetAppID,
		Timeout:        cfg.GraphTimeout,
	}, cfg.Credentials(),
		graph.WithMetrics(metrics.NewGraphMetrics(reg)),
		graph.WithCircuitBreaker(graph.NewCircuitBreaker(breakerMetrics)),
	)

	redisClient := setupRedis(cfg, metrics.NewRedisMetrics(reg), breakerMetrics)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	sessionOpts := []session.Option{session.WithMetrics(metrics.NewSessionMetrics(reg))}
	dispatcherOpts := []app.DispatcherOption{
		app.WithDispatchMetrics(webhookMetrics),
		app.WithProcessingTimeout(cfg.WebhookProcessingTimeout),
	}
	var healthChecks []httpserver.HealthCheck
	if redisClient != nil {
		sessionOpts = append(sessionOpts, session.WithProfileStore(redis.NewProfileStore(redisClient, cfg.ProfileCacheTTL)))
		dispatcherOpts = append(dispatcherOpts, app.WithDeduper(redis.NewDeduper(redisClient, cfg.DedupeTTL)))
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	sessions := session.NewRegistry(session.Config{
		MaxEntries:    cfg.SessionMaxEntries,
		TTL:           cfg.SessionTTL,
		DefaultLocale: cfg.DefaultLocale,
	}, graphClient, clock, sessionOpts...)
	stopEviction := sessions.StartEvictionTimer(sessionEvictEvery)

	personas := cfg.Personas()
	handover := app.NewHandover(graphClient, personas, metrics.NewHandoverMetrics(reg))
	responder := app.NewResponder(graphClient, handover, personas)
	dispatcher := app.NewDispatcher(sessions, responder, handover, dispatcherOpts...)

	webhook := messenger.NewWebhookHandler(
		messenger.NewVerifier(cfg.AppSecret, cfg.SignatureRequired),
		cfg.VerifyToken,
		dispatcher,
		messenger.WithMaxBody(cfg.WebhookMaxBodyBytes()),
		messenger.WithMetrics(webhookMetrics),
	)

	srv := httpserver.NewServer(httpserver.Config{
		Port:             cfg.Port,
		WebhookRateLimit: cfg.WebhookRateLimit,
		WebhookRateBurst: cfg.WebhookRateBurst,
	}, webhook,
		httpserver.WithMetrics(httpMetrics, metrics.Handler(reg)),
		httpserver.WithHealthChecks(healthChecks...),
	)

	done := runGracefulShutdown(srv, dispatcher, sessions, stopEviction)

	printBanner(cfg)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
