package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusbook/internal/models"
)

// DefaultCeiling is the number of future confirmed reservations a user may hold.
const DefaultCeiling = 3

// ErrQuotaExceeded is returned when the user already holds the maximum number of reservations.
var ErrQuotaExceeded = errors.New("reservation quota exceeded")

// ExceededError carries the count that tripped the quota.
type ExceededError struct {
	Count   int
	Ceiling int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s: %d of %d upcoming reservations", ErrQuotaExceeded, e.Count, e.Ceiling)
}

func (e *ExceededError) Unwrap() error { return ErrQuotaExceeded }

// ReservationLister returns every reservation owned by a user.
type ReservationLister interface {
	MyReservations(ctx context.Context, userID int64) ([]models.Reservation, error)
}

// Tracker counts a user's upcoming reservations. The count is recomputed from a
// fresh fetch on every check and never stored.
type Tracker struct {
	lister  ReservationLister
	ceiling int
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker. A ceiling <= 0 means DefaultCeiling.
func NewTracker(lister ReservationLister, ceiling int, opts ...Option) *Tracker {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	t := &Tracker{lister: lister, ceiling: ceiling, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Ceiling() int { return t.ceiling }

// IsUpcoming reports whether r is confirmed and starts strictly after now.
// A reservation starting at the current minute is not upcoming.
func IsUpcoming(r models.Reservation, now time.Time) bool {
	if r.Status != models.ReservationConfirmed {
		return false
	}
	today := models.DateOf(now)
	switch r.Date.Compare(today) {
	case 1:
		return true
	case 0:
		return r.StartTime > models.ClockOf(now)
	default:
		return false
	}
}

// Count returns the number of upcoming confirmed reservations.
func Count(reservations []models.Reservation, now time.Time) int {
	n := 0
	for _, r := range reservations {
		if IsUpcoming(r, now) {
			n++
		}
	}
	return n
}

// Usage refetches the user's reservations and returns the current count.
func (t *Tracker) Usage(ctx context.Context, userID int64) (int, error) {
	list, err := t.lister.MyReservations(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list reservations: %w", err)
	}
	return Count(list, t.now()), nil
}

// Check returns ErrQuotaExceeded when the user is already at the ceiling.
func (t *Tracker) Check(ctx context.Context, userID int64) error {
	n, err := t.Usage(ctx, userID)
	if err != nil {
		return err
	}
	if n >= t.ceiling {
		return &ExceededError{Count: n, Ceiling: t.ceiling}
	}
	return nil
}
