package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"campusbook/internal/config"
	"campusbook/internal/devserver"
	"campusbook/internal/metrics"
	"campusbook/internal/realtime"
	"campusbook/internal/waitlist"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	configPath := flag.String("config", "", "config file (default $"+config.EnvPath+" or configs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	database, err := devserver.OpenDB(cfg.DevBackend.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	store := devserver.NewStore(database)
	auth := devserver.NewAuth(store, bcrypt.DefaultCost)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DevBackend.Seed {
		if err := devserver.Seed(ctx, store, auth); err != nil {
			logger.Fatal().Err(err).Msg("seed database")
		}
	}

	// In-process subscribers always get events; Redis fans them out to clients.
	publishers := realtime.MultiPublisher{realtime.NewBus()}
	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.Realtime.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		publishers = append(publishers, realtime.NewRedisPublisher(rdb, cfg.RealtimeChannel()))
	}

	var promoter waitlist.Promoter
	if cfg.Waitlist.AutoPromote {
		promoter = store
	}

	if cfg.DevBackend.Reminders.Enabled {
		reminders := devserver.NewReminderService(devserver.ReminderConfig{
			Lead:          cfg.ReminderLead(),
			CheckInterval: cfg.ReminderInterval(),
			Location:      cfg.Location(),
		}, store, logger)
		reminders.Start()
		defer reminders.Stop()
	}

	backups := devserver.NewBackupService(database, devserver.BackupConfig{
		Enabled:   cfg.DevBackend.Backup.Enabled,
		Interval:  cfg.BackupInterval(),
		Dir:       cfg.DevBackend.Backup.Path,
		Retention: cfg.BackupRetention(),
	}, logger)
	go backups.Start(ctx)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8081
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	srv := &http.Server{
		Addr:              cfg.DevListen(),
		Handler:           devserver.NewServer(store, auth, publishers, promoter, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().
		Str("listen", srv.Addr).
		Str("database", database.Path()).
		Bool("auto_promote", promoter != nil).
		Bool("redis", rdb != nil).
		Msg("dev backend started")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("http server error")
	}
	logger.Info().Msg("dev backend stopped")
}

func startHealthServer(ctx context.Context, port int, database *devserver.DB, rdb *redis.Client, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
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

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
