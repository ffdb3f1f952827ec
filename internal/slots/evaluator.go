package slots

import (
	"context"
	"errors"
	"fmt"

	"campusbook/internal/models"
)

var (
	ErrTimeMissing     = errors.New("start and end time are required")
	ErrInvalidInterval = errors.New("start time must be before end time")
)

// Interval is a half-open [Start, End) span of clock time.
type Interval struct {
	Start models.ClockTime
	End   models.ClockTime
}

// Validate rejects unset bounds and start >= end.
func (iv Interval) Validate() error {
	if !iv.Start.IsSet() || !iv.End.IsSet() {
		return ErrTimeMissing
	}
	if iv.Start >= iv.End {
		return fmt.Errorf("%w: %s-%s", ErrInvalidInterval, iv.Start, iv.End)
	}
	return nil
}

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End.String()
}

// Overlaps reports whether [s1,e1) and [s2,e2) share any minute.
// Back-to-back intervals do not overlap.
func Overlaps(s1, e1, s2, e2 models.ClockTime) bool {
	return s1 < e2 && s2 < e1
}

// Overlaps reports whether iv and o overlap.
func (iv Interval) Overlaps(o Interval) bool {
	return Overlaps(iv.Start, iv.End, o.Start, o.End)
}

// FindConflicts returns the confirmed reservations of roomID on date that overlap iv.
func FindConflicts(existing []models.Reservation, roomID int64, date models.Date, iv Interval) []models.Reservation {
	var conflicts []models.Reservation
	for _, r := range existing {
		if r.RoomID != roomID || r.Date != date || r.Status != models.ReservationConfirmed {
			continue
		}
		if Overlaps(iv.Start, iv.End, r.StartTime, r.EndTime) {
			conflicts = append(conflicts, r)
		}
	}
	return conflicts
}

// ReservationSource fetches the reservations of one room on one date.
type ReservationSource interface {
	RoomReservations(ctx context.Context, roomID int64, date models.Date) ([]models.Reservation, error)
}

// Decision is the outcome of an availability check.
type Decision struct {
	Available bool
	Conflicts []models.Reservation
}

// Evaluator decides whether a slot can be requested. Its answer is advisory:
// the backend confirms or rejects the actual booking.
type Evaluator struct {
	source ReservationSource
}

func NewEvaluator(source ReservationSource) *Evaluator {
	return &Evaluator{source: source}
}

// Check fetches the room's reservations for the date and evaluates iv against them.
func (e *Evaluator) Check(ctx context.Context, roomID int64, date models.Date, iv Interval) (Decision, error) {
	if err := iv.Validate(); err != nil {
		return Decision{}, err
	}

	existing, err := e.source.RoomReservations(ctx, roomID, date)
	if err != nil {
		return Decision{}, fmt.Errorf("fetch reservations: %w", err)
	}

	conflicts := FindConflicts(existing, roomID, date, iv)
	return Decision{Available: len(conflicts) == 0, Conflicts: conflicts}, nil
}

// Slots returns the generator's grid for a date, annotated from a single fresh fetch.
func (e *Evaluator) Slots(ctx context.Context, g *Generator, roomID int64, date models.Date) ([]Slot, error) {
	existing, err := e.source.RoomReservations(ctx, roomID, date)
	if err != nil {
		return nil, fmt.Errorf("fetch reservations: %w", err)
	}
	return NewGenerator(Snapshot(existing), g.Grid()).Slots(ctx, roomID, date)
}

// Snapshot is a BookingChecker over an already fetched reservation set.
type Snapshot []models.Reservation

func (s Snapshot) IsSlotBooked(_ context.Context, roomID int64, date models.Date, iv Interval) (bool, error) {
	return len(FindConflicts(s, roomID, date, iv)) > 0, nil
}
