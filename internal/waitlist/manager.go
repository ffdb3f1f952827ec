package waitlist

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"campusbook/internal/api"
	"campusbook/internal/metrics"
	"campusbook/internal/models"
	"campusbook/internal/session"
	"campusbook/internal/slots"
)

// Backend is the slice of the REST client the manager needs.
type Backend interface {
	CreateWaitlistEntry(ctx context.Context, req api.CreateWaitlistRequest) (*models.WaitlistEntry, error)
	MyWaitlist(ctx context.Context, userID int64) ([]models.WaitlistEntry, error)
	CancelWaitlistEntry(ctx context.Context, id int64) error
}

// Request is a standing request for a room/date/interval.
type Request struct {
	RoomID   int64
	Date     models.Date
	Interval slots.Interval
}

// Manager records, lists and cancels waitlist entries.
type Manager struct {
	backend Backend
	logger  zerolog.Logger
}

func NewManager(backend Backend, logger zerolog.Logger) *Manager {
	return &Manager{backend: backend, logger: logger.With().Str("component", "waitlist").Logger()}
}

// Create submits a waitlist entry for the signed-in user.
func (m *Manager) Create(ctx context.Context, sess *session.Session, req Request) (*models.WaitlistEntry, error) {
	if err := session.Require(sess); err != nil {
		return nil, err
	}
	if err := req.Interval.Validate(); err != nil {
		return nil, err
	}

	entry, err := m.backend.CreateWaitlistEntry(ctx, api.CreateWaitlistRequest{
		UserID:    sess.UserID(),
		RoomID:    req.RoomID,
		Date:      req.Date,
		StartTime: req.Interval.Start,
		EndTime:   req.Interval.End,
	})
	if err != nil {
		metrics.IncWaitlistRequest("create", "error")
		m.logger.Warn().Err(err).Int64("room_id", req.RoomID).Str("date", req.Date.String()).Msg("waitlist request failed")
		return nil, err
	}

	metrics.IncWaitlistRequest("create", "ok")
	m.logger.Info().
		Int64("entry_id", entry.ID).
		Int64("room_id", req.RoomID).
		Str("date", req.Date.String()).
		Str("interval", req.Interval.String()).
		Msg("waitlist entry created")
	return entry, nil
}

// ListActive returns the user's entries that are still waiting.
func (m *Manager) ListActive(ctx context.Context, sess *session.Session) ([]models.WaitlistEntry, error) {
	if err := session.Require(sess); err != nil {
		return nil, err
	}
	all, err := m.backend.MyWaitlist(ctx, sess.UserID())
	if err != nil {
		return nil, err
	}
	return Active(all), nil
}

// Cancel cancels an entry. A repeated cancel is sent to the backend like the
// first one and its answer is returned unchanged.
func (m *Manager) Cancel(ctx context.Context, id int64) error {
	if err := m.backend.CancelWaitlistEntry(ctx, id); err != nil {
		metrics.IncWaitlistRequest("cancel", "error")
		return fmt.Errorf("cancel waitlist entry: %w", err)
	}
	metrics.IncWaitlistRequest("cancel", "ok")
	m.logger.Info().Int64("entry_id", id).Msg("waitlist entry cancelled")
	return nil
}

// Active filters entries down to status waiting.
func Active(entries []models.WaitlistEntry) []models.WaitlistEntry {
	out := make([]models.WaitlistEntry, 0, len(entries))
	for _, e := range entries {
		if e.Status == models.WaitlistWaiting {
			out = append(out, e)
		}
	}
	return out
}
