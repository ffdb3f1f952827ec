package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"campusbook/internal/api"
	"campusbook/internal/config"
	"campusbook/internal/models"
	"campusbook/internal/notifications"
	"campusbook/internal/quota"
	"campusbook/internal/realtime"
	"campusbook/internal/rooms"
	"campusbook/internal/session"
	"campusbook/internal/slots"
	"campusbook/internal/waitlist"
)

var errUsage = errors.New("usage")

// app holds the client-side services shared by every command.
type app struct {
	cfg        *config.Config
	configPath string
	logger     zerolog.Logger
	out        io.Writer
	now        func() time.Time

	client   *api.Client
	rdb      *redis.Client
	sessions *session.Manager
	rooms    *rooms.Service
	quota    *quota.Tracker
	waitlist *waitlist.Manager
	feed     *notifications.Feed
}

func newApp(cfg *config.Config, configPath string, logger zerolog.Logger) *app {
	client := api.NewClient(cfg.APIConfig(), logger)

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		client.UseRedisCache(rdb, cfg.CacheTTL())
	}

	now := campusClock(cfg.Location(), time.Now)
	sessions := session.NewManager(client, logger)
	return &app{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		out:        os.Stdout,
		now:        now,
		client:     client,
		rdb:        rdb,
		sessions:   sessions,
		rooms:      rooms.NewService(client, logger),
		quota:      quota.NewTracker(client, cfg.QuotaCeiling(), quota.WithClock(now)),
		waitlist:   waitlist.NewManager(client, logger),
		feed:       notifications.NewFeed(client, sessions),
	}
}

// campusClock reads base in the campus zone, so "today" never follows the host zone.
func campusClock(loc *time.Location, base func() time.Time) func() time.Time {
	return func() time.Time { return base().In(loc) }
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

// signIn logs in with the credentials from the environment.
func (a *app) signIn(ctx context.Context) (*session.Session, error) {
	if s := a.sessions.Current(); s != nil {
		return s, nil
	}
	email := os.Getenv("CAMPUSBOOK_EMAIL")
	password := os.Getenv("CAMPUSBOOK_PASSWORD")
	if email == "" || password == "" {
		return nil, fmt.Errorf("set CAMPUSBOOK_EMAIL and CAMPUSBOOK_PASSWORD: %w", api.ErrUnauthorized)
	}
	return a.sessions.Login(ctx, email, password, "")
}

// feedSource returns the live reservation feed, or nil when realtime updates
// are disabled or Redis is not configured.
func (a *app) feedSource() realtime.Feed {
	if !a.cfg.Realtime.Enabled || a.rdb == nil {
		return nil
	}
	return realtime.NewRedisFeed(a.rdb, a.cfg.RealtimeChannel(), a.logger)
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.cmdLogin(ctx)
	case "signup":
		return a.cmdSignup(ctx, args)
	case "rooms":
		return a.cmdRooms(ctx, args)
	case "free":
		return a.cmdFree(ctx, args)
	case "popular":
		return a.cmdPopular(ctx)
	case "slots":
		return a.cmdSlots(ctx, args)
	case "book":
		return a.cmdBook(ctx, args)
	case "cancel":
		return a.cmdCancel(ctx, args)
	case "my":
		return a.cmdMy(ctx, args)
	case "waitlist":
		return a.cmdWaitlist(ctx, args)
	case "notifications":
		return a.cmdNotifications(ctx, args)
	case "timeline":
		return a.cmdTimeline(ctx, args)
	case "export":
		return a.cmdExport(ctx, args)
	case "watch":
		return a.cmdWatch(ctx)
	case "room-add":
		return a.cmdRoomAdd(ctx, args)
	case "room-update":
		return a.cmdRoomUpdate(ctx, args)
	case "room-delete":
		return a.cmdRoomDelete(ctx, args)
	}
	fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
	return errUsage
}

// parseDate accepts YYYY-MM-DD, "today" and "tomorrow". Empty means today.
func (a *app) parseDate(s string) (models.Date, error) {
	today := models.DateOf(a.now())
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return today, nil
	case "tomorrow":
		return today.AddDays(1), nil
	}
	return models.ParseDate(s)
}

func parseInterval(start, end string) (slots.Interval, error) {
	iv := slots.Interval{Start: models.NoTime, End: models.NoTime}
	var err error
	if start != "" {
		if iv.Start, err = models.ParseClock(start); err != nil {
			return iv, fmt.Errorf("start time: %w", err)
		}
	}
	if end != "" {
		if iv.End, err = models.ParseClock(end); err != nil {
			return iv, fmt.Errorf("end time: %w", err)
		}
	}
	return iv, iv.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid member id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
