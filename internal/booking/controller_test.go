package booking

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusbook/internal/api"
	"campusbook/internal/models"
	"campusbook/internal/quota"
	"campusbook/internal/session"
	"campusbook/internal/slots"
	"campusbook/internal/waitlist"
)

type fakeSessions struct{ s *session.Session }

func (f fakeSessions) Current() *session.Session { return f.s }

type fakeQuota struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeQuota) Check(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []api.CreateReservationRequest
	err      error
	entered  chan struct{}
	release  chan struct{}
}

func (f *fakeBackend) CreateReservation(ctx context.Context, req api.CreateReservationRequest) (*models.Reservation, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.Reservation{
		ID: 100, RoomID: req.RoomID, UserID: req.UserID, Date: req.Date,
		StartTime: req.StartTime, EndTime: req.EndTime, Status: models.ReservationConfirmed,
	}, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeWaitlist struct {
	reqs []waitlist.Request
	err  error
}

func (f *fakeWaitlist) Create(ctx context.Context, sess *session.Session, req waitlist.Request) (*models.WaitlistEntry, error) {
	if err := session.Require(sess); err != nil {
		return nil, err
	}
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &models.WaitlistEntry{ID: 55, RoomID: req.RoomID, Date: req.Date, Status: models.WaitlistWaiting}, nil
}

type recordingNav struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNav) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

type fixture struct {
	ctrl    *Controller
	backend *fakeBackend
	quota   *fakeQuota
	wl      *fakeWaitlist
	nav     *recordingNav
}

func newFixture(sess *session.Session) *fixture {
	f := &fixture{
		backend: &fakeBackend{},
		quota:   &fakeQuota{},
		wl:      &fakeWaitlist{},
		nav:     &recordingNav{},
	}
	f.ctrl = NewController(f.backend, f.quota, f.wl, fakeSessions{s: sess}, f.nav, DefaultOptions(), zerolog.New(io.Discard))
	return f
}

var (
	student = &session.Session{User: models.User{ID: 1, Role: models.RoleStudent}}
	room30  = models.Room{ID: 3, Name: "A101", Capacity: 30}
	day     = models.Date{Year: 2025, Month: time.March, Day: 10}
)

func slot(sh, sm, eh, em int) slots.Interval {
	return slots.Interval{Start: models.Clock(sh, sm), End: models.Clock(eh, em)}
}

func TestController_SubmitSuccess(t *testing.T) {
	f := newFixture(student)
	require.NoError(t, f.ctrl.SelectSlot(room30, day, slot(10, 0, 11, 0)))
	f.ctrl.Roster().AddMember(8)
	f.ctrl.Roster().AddGuest("Park")

	res, err := f.ctrl.Submit(context.Background(), "  study group ")
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.ID)
	assert.Equal(t, StateConfirmed, f.ctrl.State())
	assert.Equal(t, []string{DefaultReturnPath}, f.nav.paths)
	assert.Equal(t, 1, f.quota.calls)

	require.Len(t, f.backend.requests, 1)
	req := f.backend.requests[0]
	assert.Equal(t, "study group", req.Purpose)
	assert.Equal(t, int64(1), req.UserID)
	assert.Equal(t, []models.Participant{models.Member(8), models.Guest("Park")}, req.Participants)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, res, snap.Reservation)
	assert.Empty(t, snap.Message)
}

func TestController_ValidationGatesRunBeforeNetwork(t *testing.T) {
	tests := []struct {
		name string
		iv   slots.Interval
		want error
	}{
		{"missing start", slots.Interval{Start: models.NoTime, End: models.Clock(11, 0)}, slots.ErrTimeMissing},
		{"missing end", slots.Interval{Start: models.Clock(10, 0), End: models.NoTime}, slots.ErrTimeMissing},
		{"start equals end", slot(10, 0, 10, 0), slots.ErrInvalidInterval},
		{"start after end", slot(11, 0, 10, 0), slots.ErrInvalidInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(student)
			require.NoError(t, f.ctrl.SelectSlot(room30, day, tt.iv))

			_, err := f.ctrl.Submit(context.Background(), "")
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, StateSlotSelected, f.ctrl.State())
			assert.Equal(t, 0, f.quota.calls)
			assert.Equal(t, 0, f.backend.calls())
			assert.NotEmpty(t, f.ctrl.Snapshot().Message)
		})
	}
}

func TestController_CapacityScenario(t *testing.T) {
	f := newFixture(student)
	require.NoError(t, f.ctrl.SelectSlot(room30, day, slot(10, 0, 11, 0)))
	for id := int64(100); id < 128; id++ {
		f.ctrl.Roster().AddMember(id)
	}
	f.ctrl.Roster().AddGuest("20230001")
	f.ctrl.Roster().AddGuest("20230002")

	_, err := f.ctrl.Submit(context.Background(), "seminar")
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 31, capErr.Headcount)
	assert.Equal(t, 30, capErr.Capacity)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, StateRejected, f.ctrl.State())
	assert.Equal(t, 1, f.quota.calls)
	assert.Equal(t, 0, f.backend.calls())

	// Dropping one guest brings the headcount to exactly 30.
	f.ctrl.Roster().RemoveGuest("20230002")
	_, err = f.ctrl.Submit(context.Background(), "seminar")
	assert.NoError(t, err)
}

func TestController_QuotaGateRunsBeforeCapacity(t *testing.T) {
	f := newFixture(student)
	f.quota.err = &quota.ExceededError{Count: 3, Ceiling: 3}
	require.NoError(t, f.ctrl.SelectSlot(room30, day, slot(10, 0, 11, 0)))
	for id := int64(100); id < 140; id++ {
		f.ctrl.Roster().AddMember(id)
	}

	_, err := f.ctrl.Submit(context.Background(), "")
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
	assert.NotErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, "You can hold at most 3 upcoming reservations. Cancel one before booking again.", f.ctrl.Snapshot().Message)
	assert.Equal(t, 0, f.backend.calls())
}

func TestController_NoParticipantsSkipsCapacity(t *testing.T) {
	f := newFixture(student)
	tiny := models.Room{ID: 9, Capacity: 0}
	require.NoError(t, f.ctrl.SelectSlot(tiny, day, slot(10, 0, 11, 0)))

	_, err := f.ctrl.Submit(context.Background(), "")
	assert.NoError(t, err)
}

func TestController_QuotaExceeded(t *testing.T) {
	f := newFixture(student)
	f.quota.err = &quota.ExceededError{Count: 3, Ceiling: 3}
	require.NoError(t, f.ctrl.SelectSlot(room30, day, slot(10, 0, 11, 0)))

	_, err := f.ctrl.Submit(context.Background(), "")
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
	assert.Equal(t, StateRejected, f.ctrl.State())
	assert.Equal(t, 0, f.backend.calls(), "quota rejection must not reach the create call")
	assert.Contains(t, f.ctrl.Snapshot().Message, "3")
	assert.Empty(t, f.nav.paths)

	_, err = f.ctrl.JoinWaitlist(context.Background())
	assert.ErrorIs(t, err, ErrWaitlistNotOffered)
}

func TestController_ConflictOffersWaitlist(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"http 409", &api.APIError{Status: 409, Message: "slot taken", Conflict: true}},
		{"conflict message", &api.APIError{Status: 400, Message: "time overlap with reservation", Conflict: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(student)
			f.backend.err = tt.err
			require.NoError(t, f.ctrl.SelectSlot(room30, day, slot(10, 0, 11, 0)))

			_, err := f.ctrl.Submit(context.Background(), "")
			assert.ErrorIs(t, err, api.ErrConflict)
			assert.Equal(t, StateWaitlistOffered, f.ctrl.State())
			assert.Empty(t, f.nav.paths)

			entry, err := f.ctrl.JoinWaitlist(context.Background())
			require.NoError(t, err)
			assert.Equal(t, int64(55), entry.ID)
			assert.Equal(t, StateWaitlistConfirmed, f.ctrl.State())
			assert.Equal(t, []string{DefaultReturnPath}, f.nav.paths)

			require.Len(t, f.wl.reqs, 1)
			assert.Equal(t, waitlist.Request{RoomID: 3, Date: day, Interval: slot(10, 0, 11, 0)}, f.wl.reqs[0])
		})
	}
}

func TestController_NonConflictRejection(t *testing.T) {
	f := newFixture(student)
	f.backend.err = &api.APIError{Status: 500, Message: "database is locked"}
	require.NoError(t, f.ctrl.SelectSlot(room30, day, slot(10, 0, 11, 0)))

	_, err := f.ctrl.Submit(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, StateRejected, f.ctrl.State())
	assert.Equal(t, "database is locked", f.ctrl.Snapshot().Message)
}

func TestController_WaitlistRejected(t *testing.T) {
	f := newFixture(student)
	f.backend.err = &api.APIError{Status: 409, Conflict: true}
	f.wl.err = &api.APIError{Status: 500, Message: "boom"}
	require.NoError(t, f.ctrl.SelectSlot(room30, day, slot(10, 0, 11, 0)))

	_, _ = f.ctrl.Submit(context.Background(), "")
	_, err := f.ctrl.JoinWaitlist(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateWaitlistRejected, f.ctrl.State())
	assert.Empty(t, f.nav.paths)

	f.wl.err = nil
	_, err = f.ctrl.JoinWaitlist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateWaitlistConfirmed, f.ctrl.State())
}

func TestController_Unauthenticated(t *testing.T) {
	f := newFixture(nil)
	require.NoError(t, f.ctrl.SelectSlot(room30, day, slot(10, 0, 11, 0)))

	_, err := f.ctrl.Submit(context.Background(), "")
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.Equal(t, 0, f.quota.calls)
	assert.Equal(t, "Please log in first.", UserMessage(err))
}

func TestController_SubmitWithoutSelection(t *testing.T) {
	f := newFixture(student)
	_, err := f.ctrl.Submit(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoSlotSelected)
}

func TestController_ConcurrentSubmitIsRejected(t *testing.T) {
	f := newFixture(student)
	f.backend.entered = make(chan struct{}, 1)
	f.backend.release = make(chan struct{})
	require.NoError(t, f.ctrl.SelectSlot(room30, day, slot(10, 0, 11, 0)))

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Submit(context.Background(), "")
		done <- err
	}()
	<-f.backend.entered

	_, err := f.ctrl.Submit(context.Background(), "")
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = f.ctrl.JoinWaitlist(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(f.backend.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.backend.calls())
	assert.Equal(t, StateConfirmed, f.ctrl.State())
}

func TestController_StaleResponseDiscarded(t *testing.T) {
	f := newFixture(student)
	f.backend.entered = make(chan struct{}, 1)
	f.backend.release = make(chan struct{})
	require.NoError(t, f.ctrl.SelectSlot(room30, day, slot(10, 0, 11, 0)))

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Submit(context.Background(), "")
		done <- err
	}()
	<-f.backend.entered

	f.ctrl.Reset()
	close(f.backend.release)

	assert.ErrorIs(t, <-done, ErrDiscarded)
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.Nil(t, f.ctrl.Snapshot().Reservation)
	assert.Empty(t, f.nav.paths)
}

func TestController_StaleRejectionAfterReselect(t *testing.T) {
	f := newFixture(student)
	f.backend.entered = make(chan struct{}, 1)
	f.backend.release = make(chan struct{})
	f.backend.err = &api.APIError{Status: 409, Conflict: true}
	require.NoError(t, f.ctrl.SelectSlot(room30, day, slot(10, 0, 11, 0)))

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Submit(context.Background(), "")
		done <- err
	}()
	<-f.backend.entered

	require.NoError(t, f.ctrl.SelectSlot(room30, day, slot(14, 0, 15, 0)))
	close(f.backend.release)

	assert.ErrorIs(t, <-done, ErrDiscarded)
	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateSlotSelected, snap.State)
	assert.Equal(t, slot(14, 0, 15, 0), snap.Selection.Interval)
	assert.NoError(t, snap.Err)
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrSubmissionInFlight, "Your request is still being processed."},
		{&api.APIError{Status: 409, Conflict: true}, "This time slot is already reserved. You can join the waitlist instead."},
		{&api.APIError{Status: 404}, "The room or reservation no longer exists."},
		{&api.APIError{Status: 403}, "You do not have permission to do that."},
		{errors.Join(api.ErrTransport, errors.New("dial tcp")), "Cannot reach the reservation server. Please try again."},
		{&quota.ExceededError{Count: 5, Ceiling: 5}, "You can hold at most 5 upcoming reservations. Cancel one before booking again."},
		{&CapacityError{Headcount: 31, Capacity: 30}, "31 people (including you) exceed the room capacity of 30."},
		{&api.APIError{Status: 422, Message: "purpose too long"}, "purpose too long"},
		{errors.New("weird"), "Something went wrong. Please try again."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, UserMessage(tt.err))
	}
}
