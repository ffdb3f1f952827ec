// Package timeline keeps a live view of one room's reservations.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"campusbook/internal/models"
	"campusbook/internal/realtime"
)

// LookbackDays bounds the undated view.
const LookbackDays = 7

var (
	ErrClosed = errors.New("timeline closed")
	ErrStale  = errors.New("timeline refresh superseded")
)

// Source fetches a room's reservations. A zero date means every date.
type Source interface {
	RoomReservations(ctx context.Context, roomID int64, date models.Date) ([]models.Reservation, error)
}

// Day groups the reservations of one date.
type Day struct {
	Date         models.Date
	Reservations []models.Reservation
}

type Option func(*View)

// WithClock overrides time.Now for the lookback window.
func WithClock(now func() time.Time) Option {
	return func(v *View) { v.now = now }
}

// WithUpdateHook is called after every applied refresh.
func WithUpdateHook(fn func([]models.Reservation)) Option {
	return func(v *View) { v.onUpdate = fn }
}

// View is the reservation list of a single room. Feed events only mark the
// list stale; the view then refetches from the Source.
type View struct {
	roomID   int64
	source   Source
	logger   zerolog.Logger
	now      func() time.Time
	onUpdate func([]models.Reservation)

	mu        sync.Mutex
	date      models.Date
	gen       uint64
	closed    bool
	items     []models.Reservation
	updatedAt time.Time

	cancel context.CancelFunc
	sub    *realtime.Subscription
	wg     sync.WaitGroup
}

// Open loads the room and starts following feed events. A nil feed, or one
// that fails to subscribe, leaves the view static.
func Open(ctx context.Context, roomID int64, source Source, feed realtime.Feed, logger zerolog.Logger, opts ...Option) (*View, error) {
	v := &View{
		roomID: roomID,
		source: source,
		logger: logger.With().Str("component", "timeline").Int64("room_id", roomID).Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel

	if feed != nil {
		sub, err := feed.Subscribe(listenCtx, roomID)
		if err != nil {
			v.logger.Warn().Err(err).Msg("live updates unavailable")
		} else {
			v.sub = sub
			v.wg.Add(1)
			go v.listen(listenCtx, sub)
		}
	}

	if err := v.Refresh(ctx); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

func (v *View) listen(ctx context.Context, sub *realtime.Subscription) {
	defer v.wg.Done()
	for range sub.C() {
		v.logger.Debug().Msg("reservation update received")
		if err := v.Refresh(ctx); err != nil && !errors.Is(err, ErrStale) && !errors.Is(err, ErrClosed) {
			if ctx.Err() == nil {
				v.logger.Warn().Err(err).Msg("refetch after update")
			}
		}
	}
}

// RoomID is the room this view follows.
func (v *View) RoomID() int64 { return v.roomID }

// Date is the selected date; zero means the last LookbackDays days.
func (v *View) Date() models.Date {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.date
}

// SetDate switches the filter and refetches.
func (v *View) SetDate(ctx context.Context, d models.Date) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.date = d
	v.mu.Unlock()
	return v.Refresh(ctx)
}

// Refresh refetches the list. A result is applied only if no newer refresh
// started meanwhile and the view is still open.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.gen++
	gen, date := v.gen, v.date
	v.mu.Unlock()

	list, err := v.source.RoomReservations(ctx, v.roomID, date)
	if err != nil {
		return fmt.Errorf("room %d reservations: %w", v.roomID, err)
	}
	list = v.filter(list, date)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if gen != v.gen {
		v.mu.Unlock()
		return ErrStale
	}
	v.items = list
	v.updatedAt = v.now()
	hook := v.onUpdate
	v.mu.Unlock()

	if hook != nil {
		hook(append([]models.Reservation(nil), list...))
	}
	return nil
}

func (v *View) filter(list []models.Reservation, date models.Date) []models.Reservation {
	from := models.DateOf(v.now()).AddDays(-LookbackDays)
	out := make([]models.Reservation, 0, len(list))
	for _, r := range list {
		if r.RoomID != 0 && r.RoomID != v.roomID {
			continue
		}
		if !date.IsZero() {
			if r.Date != date {
				continue
			}
		} else if r.Date.Before(from) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

// Reservations returns a copy of the current list, ordered by date and start.
func (v *View) Reservations() []models.Reservation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.Reservation(nil), v.items...)
}

// Days groups the current list by date, oldest first.
func (v *View) Days() []Day {
	var days []Day
	for _, r := range v.Reservations() {
		if n := len(days); n > 0 && days[n-1].Date == r.Date {
			days[n-1].Reservations = append(days[n-1].Reservations, r)
			continue
		}
		days = append(days, Day{Date: r.Date, Reservations: []models.Reservation{r}})
	}
	return days
}

// UpdatedAt is when the last refresh was applied.
func (v *View) UpdatedAt() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updatedAt
}

// Close stops following the feed. Results arriving afterwards are dropped.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	if v.sub != nil {
		v.sub.Close()
	}
	v.cancel()
	v.wg.Wait()
}
