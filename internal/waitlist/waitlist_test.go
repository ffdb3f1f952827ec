package waitlist

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"campusbook/internal/api"
	"campusbook/internal/models"
	"campusbook/internal/session"
	"campusbook/internal/slots"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) CreateWaitlistEntry(ctx context.Context, req api.CreateWaitlistRequest) (*models.WaitlistEntry, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WaitlistEntry), args.Error(1)
}

func (m *mockBackend) MyWaitlist(ctx context.Context, userID int64) ([]models.WaitlistEntry, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.WaitlistEntry), args.Error(1)
}

func (m *mockBackend) CancelWaitlistEntry(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

var day = models.Date{Year: 2025, Month: time.March, Day: 10}

func iv(sh, eh int) slots.Interval {
	return slots.Interval{Start: models.Clock(sh, 0), End: models.Clock(eh, 0)}
}

func TestManager_Create(t *testing.T) {
	ctx := context.Background()
	sess := &session.Session{User: models.User{ID: 4, Role: models.RoleStudent}}

	t.Run("unauthenticated makes no call", func(t *testing.T) {
		backend := new(mockBackend)
		m := NewManager(backend, zerolog.New(io.Discard))

		_, err := m.Create(ctx, nil, Request{RoomID: 1, Date: day, Interval: iv(10, 11)})
		assert.ErrorIs(t, err, api.ErrUnauthorized)
		backend.AssertNotCalled(t, "CreateWaitlistEntry", mock.Anything, mock.Anything)
	})

	t.Run("invalid interval makes no call", func(t *testing.T) {
		backend := new(mockBackend)
		m := NewManager(backend, zerolog.New(io.Discard))

		_, err := m.Create(ctx, sess, Request{RoomID: 1, Date: day, Interval: iv(11, 11)})
		assert.ErrorIs(t, err, slots.ErrInvalidInterval)
		backend.AssertNotCalled(t, "CreateWaitlistEntry", mock.Anything, mock.Anything)
	})

	t.Run("sends payload for the session user", func(t *testing.T) {
		backend := new(mockBackend)
		m := NewManager(backend, zerolog.New(io.Discard))

		want := api.CreateWaitlistRequest{UserID: 4, RoomID: 1, Date: day, StartTime: models.Clock(10, 0), EndTime: models.Clock(11, 0)}
		backend.On("CreateWaitlistEntry", ctx, want).
			Return(&models.WaitlistEntry{ID: 12, Status: models.WaitlistWaiting}, nil).Once()

		entry, err := m.Create(ctx, sess, Request{RoomID: 1, Date: day, Interval: iv(10, 11)})
		require.NoError(t, err)
		assert.Equal(t, int64(12), entry.ID)
		backend.AssertExpectations(t)
	})
}

func TestManager_ListActive(t *testing.T) {
	backend := new(mockBackend)
	m := NewManager(backend, zerolog.New(io.Discard))
	sess := &session.Session{User: models.User{ID: 4}}

	backend.On("MyWaitlist", mock.Anything, int64(4)).Return([]models.WaitlistEntry{
		{ID: 1, Status: models.WaitlistWaiting},
		{ID: 2, Status: models.WaitlistCancelled},
		{ID: 3, Status: models.WaitlistFulfilled},
		{ID: 4, Status: models.WaitlistWaiting},
	}, nil)

	list, err := m.ListActive(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].ID)
	assert.Equal(t, int64(4), list[1].ID)

	_, err = m.ListActive(context.Background(), nil)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
}

func TestManager_CancelTwiceForwardsBoth(t *testing.T) {
	backend := new(mockBackend)
	m := NewManager(backend, zerolog.New(io.Discard))

	backend.On("CancelWaitlistEntry", mock.Anything, int64(9)).Return(nil).Once()
	backend.On("CancelWaitlistEntry", mock.Anything, int64(9)).Return(&api.APIError{Status: 404, Message: "not found"}).Once()

	require.NoError(t, m.Cancel(context.Background(), 9))
	err := m.Cancel(context.Background(), 9)
	assert.ErrorIs(t, err, api.ErrNotFound)
	backend.AssertNumberOfCalls(t, "CancelWaitlistEntry", 2)
}

func TestNextPromotable(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := func(id int64, created time.Duration, sh, eh int) models.WaitlistEntry {
		return models.WaitlistEntry{
			ID: id, RoomID: 1, Date: day, Status: models.WaitlistWaiting,
			StartTime: models.Clock(sh, 0), EndTime: models.Clock(eh, 0),
			CreatedAt: base.Add(created),
		}
	}
	confirmed := func(sh, eh int) models.Reservation {
		return models.Reservation{RoomID: 1, Date: day, StartTime: models.Clock(sh, 0), EndTime: models.Clock(eh, 0), Status: models.ReservationConfirmed}
	}

	tests := []struct {
		name      string
		entries   []models.WaitlistEntry
		confirmed []models.Reservation
		wantID    int64
		wantOK    bool
	}{
		{
			name:    "oldest first",
			entries: []models.WaitlistEntry{entry(2, time.Minute, 10, 11), entry(1, 0, 10, 11)},
			wantID:  1, wantOK: true,
		},
		{
			name:      "skips still blocked entries",
			entries:   []models.WaitlistEntry{entry(1, 0, 10, 11), entry(2, time.Minute, 14, 15)},
			confirmed: []models.Reservation{confirmed(10, 12)},
			wantID:    2, wantOK: true,
		},
		{
			name:    "same creation time falls back to id",
			entries: []models.WaitlistEntry{entry(7, 0, 10, 11), entry(3, 0, 10, 11)},
			wantID:  3, wantOK: true,
		},
		{
			name: "ignores other statuses, rooms and dates",
			entries: []models.WaitlistEntry{
				func() models.WaitlistEntry { e := entry(1, 0, 10, 11); e.Status = models.WaitlistCancelled; return e }(),
				func() models.WaitlistEntry { e := entry(2, 0, 10, 11); e.RoomID = 2; return e }(),
				func() models.WaitlistEntry { e := entry(3, 0, 10, 11); e.Date = day.AddDays(1); return e }(),
			},
			wantOK: false,
		},
		{
			name:      "nothing eligible",
			entries:   []models.WaitlistEntry{entry(1, 0, 10, 11)},
			confirmed: []models.Reservation{confirmed(10, 11)},
			wantOK:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextPromotable(tt.entries, tt.confirmed, 1, day)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, got.ID)
			}
		})
	}
}
