package devserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"campusbook/internal/metrics"
	"campusbook/internal/models"
)

// ReminderConfig holds configuration for the reminder service.
type ReminderConfig struct {
	// Lead is how long before the start a reminder is created. Default: 30 minutes.
	Lead time.Duration
	// CheckInterval is how often upcoming reservations are scanned. Default: 1 minute.
	CheckInterval time.Duration
	// Location interprets reservation dates and times. Default: time.Local.
	Location *time.Location
}

// ReminderService creates a notification shortly before each confirmed
// reservation starts. Each reservation is reminded at most once.
type ReminderService struct {
	config ReminderConfig
	store  *Store
	logger zerolog.Logger
	now    func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewReminderService(cfg ReminderConfig, store *Store, logger zerolog.Logger) *ReminderService {
	if cfg.Lead <= 0 {
		cfg.Lead = 30 * time.Minute
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &ReminderService{
		config: cfg,
		store:  store,
		logger: logger.With().Str("component", "reminders").Logger(),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

// Start begins the reminder check loop.
func (s *ReminderService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().
		Dur("lead", s.config.Lead).
		Dur("check_interval", s.config.CheckInterval).
		Msg("reminder service started")
}

// Stop gracefully stops the reminder service.
func (s *ReminderService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.logger.Info().Msg("reminder service stopped")
}

func (s *ReminderService) loop() {
	defer s.wg.Done()

	// Run immediately on start
	s.runOnce()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *ReminderService) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sent, err := s.CheckOnce(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("reminder check failed")
		return
	}
	if sent > 0 {
		s.logger.Debug().Int("sent", sent).Msg("reminders sent")
	}
}

// CheckOnce creates reminders for reservations starting within the lead
// window and reports how many were created.
func (s *ReminderService) CheckOnce(ctx context.Context) (int, error) {
	now := s.now().In(s.config.Location)
	horizon := now.Add(s.config.Lead)

	list, err := s.store.UnremindedBetween(ctx, models.DateOf(now), models.DateOf(horizon))
	if err != nil {
		return 0, fmt.Errorf("load upcoming reservations: %w", err)
	}

	sent := 0
	for i := range list {
		r := &list[i]
		startsAt := r.StartsAt(s.config.Location)
		if startsAt.Before(now) || startsAt.After(horizon) {
			continue
		}

		msg := fmt.Sprintf("Your reservation at %s starts at %s (%s).", roomLabel(r), r.StartTime, r.Date)
		if err := s.store.CreateNotification(ctx, r.UserID, msg); err != nil {
			s.logger.Error().Err(err).Int64("reservation_id", r.ID).Msg("create reminder")
			continue
		}
		if err := s.store.MarkReminded(ctx, r.ID); err != nil {
			s.logger.Error().Err(err).Int64("reservation_id", r.ID).Msg("mark reminded")
			continue
		}
		metrics.IncReminderSent()
		sent++
	}
	return sent, nil
}

func roomLabel(r *models.Reservation) string {
	if r.Room != nil && r.Room.Name != "" {
		return r.Room.Name
	}
	return fmt.Sprintf("room %d", r.RoomID)
}
