package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusbook/internal/models"
)

type stubLister struct {
	list []models.Reservation
	err  error
}

func (s *stubLister) MyReservations(ctx context.Context, userID int64) ([]models.Reservation, error) {
	return s.list, s.err
}

var fixedNow = time.Date(2025, 3, 10, 14, 0, 30, 0, time.Local)

func res(date models.Date, start models.ClockTime, status models.ReservationStatus) models.Reservation {
	return models.Reservation{Date: date, StartTime: start, EndTime: start.Add(time.Hour), Status: status}
}

func TestIsUpcoming(t *testing.T) {
	today := models.DateOf(fixedNow)

	tests := []struct {
		name string
		r    models.Reservation
		want bool
	}{
		{"tomorrow", res(today.AddDays(1), models.Clock(9, 0), models.ReservationConfirmed), true},
		{"yesterday", res(today.AddDays(-1), models.Clock(20, 0), models.ReservationConfirmed), false},
		{"later today", res(today, models.Clock(14, 1), models.ReservationConfirmed), true},
		{"starts this minute", res(today, models.Clock(14, 0), models.ReservationConfirmed), false},
		{"earlier today", res(today, models.Clock(9, 0), models.ReservationConfirmed), false},
		{"cancelled future", res(today.AddDays(2), models.Clock(9, 0), models.ReservationCancelled), false},
		{"pending future", res(today.AddDays(2), models.Clock(9, 0), models.ReservationPending), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUpcoming(tt.r, fixedNow))
		})
	}
}

func TestTracker_Check(t *testing.T) {
	today := models.DateOf(fixedNow)
	three := []models.Reservation{
		res(today.AddDays(1), models.Clock(9, 0), models.ReservationConfirmed),
		res(today.AddDays(2), models.Clock(9, 0), models.ReservationConfirmed),
		res(today, models.Clock(16, 0), models.ReservationConfirmed),
	}

	t.Run("at ceiling", func(t *testing.T) {
		tr := NewTracker(&stubLister{list: three}, 0, WithClock(func() time.Time { return fixedNow }))
		assert.Equal(t, DefaultCeiling, tr.Ceiling())

		err := tr.Check(context.Background(), 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrQuotaExceeded)
	})

	t.Run("boundary reservation not counted", func(t *testing.T) {
		list := append([]models.Reservation{}, three[:2]...)
		list = append(list, res(today, models.Clock(14, 0), models.ReservationConfirmed))
		tr := NewTracker(&stubLister{list: list}, 3, WithClock(func() time.Time { return fixedNow }))

		n, err := tr.Usage(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.NoError(t, tr.Check(context.Background(), 1))
	})

	t.Run("cancelled rows free the quota", func(t *testing.T) {
		list := append([]models.Reservation{}, three...)
		list[0].Status = models.ReservationCancelled
		tr := NewTracker(&stubLister{list: list}, 3, WithClock(func() time.Time { return fixedNow }))
		assert.NoError(t, tr.Check(context.Background(), 1))
	})

	t.Run("custom ceiling", func(t *testing.T) {
		tr := NewTracker(&stubLister{list: three[:1]}, 1, WithClock(func() time.Time { return fixedNow }))
		assert.ErrorIs(t, tr.Check(context.Background(), 1), ErrQuotaExceeded)
	})

	t.Run("lister error", func(t *testing.T) {
		boom := errors.New("boom")
		tr := NewTracker(&stubLister{err: boom}, 3)
		err := tr.Check(context.Background(), 1)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrQuotaExceeded)
	})
}
