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
	"github.com/rs/zerolog"

	"campusbook/internal/booking"
	"campusbook/internal/config"
	"campusbook/internal/metrics"
)

const usage = `usage: campusbook [-config path] <command> [flags]

commands:
  login                       sign in with CAMPUSBOOK_EMAIL / CAMPUSBOOK_PASSWORD
  signup                      register a new account
  rooms                       list rooms (-search, -min)
  free                        rooms free for a whole interval (-date, -start, -end)
  popular                     most booked rooms
  slots                       slot grid of one room (-room, -date)
  book                        reserve a slot (-room, -date, -start, -end, ...)
  cancel                      cancel a reservation (-id)
  my                          active reservations and quota usage (-history)
  waitlist                    my active waitlist entries (-cancel id)
  notifications               my notifications (-read id, -all)
  timeline                    reservations of a room (-room, -date, -follow)
  export                      write reservations to an xlsx file
  watch                       follow notifications until interrupted
  room-add, room-update, room-delete   manage rooms (admin)
`

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()
	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(os.Getenv("CAMPUSBOOK_LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}
	logger = logger.Level(level)

	configPath := flag.String("config", "", "config file (default $"+config.EnvPath+" or configs/config.yaml)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", config.Path(*configPath)).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, *configPath, logger)
	defer a.close()

	if err := a.run(ctx, args[0], args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		logger.Debug().Err(err).Str("command", args[0]).Msg("command failed")
		fmt.Fprintln(os.Stderr, booking.UserMessage(err))
		stop()
		os.Exit(1)
	}
}

// startMetricsServer exposes /metrics for the long-running commands.
func startMetricsServer(ctx context.Context, port int, logger zerolog.Logger) {
	metrics.Register()

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
