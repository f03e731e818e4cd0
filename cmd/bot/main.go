package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carelink/internal/availability"
	"carelink/internal/bot"
	"carelink/internal/config"
	"carelink/internal/metrics"
	"carelink/internal/portalapi"
	"carelink/internal/reminders"
	"carelink/internal/session"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	// .env is optional; config values reference its variables via ${VAR}.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CARELINK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Fatal().Msg("set telegram.bot_token in config")
	}
	if cfg.API.BaseURL == "" {
		logger.Fatal().Msg("set api.base_url in config")
	}

	sessions, err := session.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open session db error")
	}
	defer sessions.Close()

	client := portalapi.NewClient(cfg.API.BaseURL, cfg.APITimeout())
	if cfg.API.RatePerSecond > 0 {
		client.SetRateLimit(cfg.API.RatePerSecond, cfg.API.RateBurst)
	}

	resolver := availability.NewResolver(client, cfg.AvailabilityCacheTTL())
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		resolver.UseRedisCache(rdb)
	}

	opts := bot.Options{
		SearchWindowDays:  cfg.SearchWindowDays(),
		BookingWindowDays: cfg.BookingWindowDays(),
		SessionTimeout:    cfg.SessionTimeout(),
	}
	b, err := bot.New(cfg.Telegram.BotToken, client, resolver, sessions, opts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, sessions, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Reminders.Enabled {
		reminderSvc := reminders.New(reminders.Config{
			Enabled:       true,
			CheckInterval: cfg.ReminderCheckInterval(),
			Lead:          cfg.ReminderLead(),
			RetentionDays: cfg.Reminders.RetentionDays,
		}, &reminders.PortalSource{Client: client, Sessions: sessions}, sessions, b, &logger)
		go reminderSvc.Start(ctx)
	}

	if cfg.Backup.Enabled {
		backupSvc := session.NewBackupService(cfg.Database.Path, session.BackupConfig{
			Enabled:       true,
			StoragePath:   cfg.Backup.Path,
			Interval:      cfg.BackupInterval(),
			RetentionDays: cfg.Backup.RetentionDays,
		}, &logger)
		go backupSvc.Start(ctx)
	}

	logger.Info().Msg("portal bot started")
	b.Start(ctx)
}

func startHealthServer(ctx context.Context, port int, sessions *session.Store, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := sessions.Ping(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
