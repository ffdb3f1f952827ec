package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"campusbook/internal/api"
	"campusbook/internal/metrics"
	"campusbook/internal/models"
	"campusbook/internal/quota"
	"campusbook/internal/session"
	"campusbook/internal/slots"
	"campusbook/internal/waitlist"
)

// DefaultReturnPath is where the user lands after a successful attempt.
const DefaultReturnPath = "/my-reservations"

// Navigator moves the user to another view.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// ReservationCreator submits bookings to the backend.
type ReservationCreator interface {
	CreateReservation(ctx context.Context, req api.CreateReservationRequest) (*models.Reservation, error)
}

// QuotaChecker refetches the user's reservations and enforces the ceiling.
type QuotaChecker interface {
	Check(ctx context.Context, userID int64) error
}

// WaitlistCreator records waitlist entries.
type WaitlistCreator interface {
	Create(ctx context.Context, sess *session.Session, req waitlist.Request) (*models.WaitlistEntry, error)
}

// SessionSource yields the signed-in user.
type SessionSource interface {
	Current() *session.Session
}

// Options tune a Controller.
type Options struct {
	LegacyNumericGuests bool
	ReturnPath          string
}

// DefaultOptions keeps the historic participant encoding.
func DefaultOptions() Options {
	return Options{LegacyNumericGuests: true, ReturnPath: DefaultReturnPath}
}

// Selection is the slot a booking attempt targets.
type Selection struct {
	Room     models.Room
	Date     models.Date
	Interval slots.Interval
}

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	State       State
	Selection   *Selection
	Purpose     string
	Reservation *models.Reservation
	Entry       *models.WaitlistEntry
	Err         error
	Message     string
}

// Controller coordinates one reservation attempt. All methods are safe for
// concurrent use; at most one request is in flight at a time.
type Controller struct {
	fsm       *FSM
	backend   ReservationCreator
	quota     QuotaChecker
	waitlist  WaitlistCreator
	sessions  SessionSource
	navigator Navigator
	roster    *Roster
	opts      Options
	logger    zerolog.Logger

	mu          sync.Mutex
	state       State
	generation  uint64
	selection   *Selection
	purpose     string
	reservation *models.Reservation
	entry       *models.WaitlistEntry
	lastErr     error
}

func NewController(
	backend ReservationCreator,
	quotas QuotaChecker,
	wl WaitlistCreator,
	sessions SessionSource,
	navigator Navigator,
	opts Options,
	logger zerolog.Logger,
) *Controller {
	if opts.ReturnPath == "" {
		opts.ReturnPath = DefaultReturnPath
	}
	if navigator == nil {
		navigator = NavigatorFunc(func(string) {})
	}
	return &Controller{
		fsm:       NewFSM(),
		backend:   backend,
		quota:     quotas,
		waitlist:  wl,
		sessions:  sessions,
		navigator: navigator,
		roster:    NewRoster(opts.LegacyNumericGuests),
		opts:      opts,
		logger:    logger.With().Str("component", "booking").Logger(),
		state:     StateIdle,
	}
}

// Roster returns the participant roster of the current attempt.
func (c *Controller) Roster() *Roster { return c.roster }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current state and the data collected so far.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:       c.state,
		Purpose:     c.purpose,
		Reservation: c.reservation,
		Entry:       c.entry,
		Err:         c.lastErr,
		Message:     UserMessage(c.lastErr),
	}
	if c.selection != nil {
		sel := *c.selection
		snap.Selection = &sel
	}
	return snap
}

// SelectSlot chooses the room, date and interval. Any response still in
// flight for an earlier selection will be discarded.
func (c *Controller) SelectSlot(room models.Room, date models.Date, iv slots.Interval) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fsm.CanTransition(c.state, StateSlotSelected) {
		return fmt.Errorf("cannot select a slot in state %s", c.state)
	}
	c.generation++
	c.selection = &Selection{Room: room, Date: date, Interval: iv}
	c.reservation = nil
	c.entry = nil
	c.lastErr = nil
	c.state = StateSlotSelected
	return nil
}

// Reset abandons the attempt and clears the roster.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.generation++
	c.state = StateIdle
	c.selection = nil
	c.purpose = ""
	c.reservation = nil
	c.entry = nil
	c.lastErr = nil
	c.mu.Unlock()

	c.roster.Clear()
}

// Submit validates the attempt and sends it to the backend. On a conflict the
// controller ends in StateWaitlistOffered and the returned error matches
// api.ErrConflict.
func (c *Controller) Submit(ctx context.Context, purpose string) (*models.Reservation, error) {
	c.mu.Lock()
	if c.state.InFlight() {
		c.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if c.selection == nil || !c.fsm.CanTransition(c.state, StateSubmitting) {
		c.mu.Unlock()
		return nil, ErrNoSlotSelected
	}

	sel := *c.selection
	sess := c.sessions.Current()
	if err := c.precheck(sess, sel); err != nil {
		c.lastErr = err
		c.mu.Unlock()
		metrics.IncReservationAttempt(outcome(err))
		return nil, err
	}

	c.state = StateSubmitting
	c.purpose = strings.TrimSpace(purpose)
	c.lastErr = nil
	gen := c.generation
	req := api.CreateReservationRequest{
		RoomID:       sel.Room.ID,
		UserID:       sess.UserID(),
		Date:         sel.Date,
		StartTime:    sel.Interval.Start,
		EndTime:      sel.Interval.End,
		Purpose:      c.purpose,
		Participants: c.roster.Participants(),
	}
	c.mu.Unlock()

	if err := c.quota.Check(ctx, req.UserID); err != nil {
		return nil, c.fail(gen, err)
	}
	if err := checkCapacity(sel.Room, len(req.Participants)); err != nil {
		return nil, c.fail(gen, err)
	}

	res, err := c.backend.CreateReservation(ctx, req)
	if err != nil {
		return nil, c.fail(gen, err)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		c.logger.Debug().Int64("reservation_id", res.ID).Msg("stale confirmation discarded")
		return nil, ErrDiscarded
	}
	c.state = StateConfirmed
	c.reservation = res
	c.mu.Unlock()

	metrics.IncReservationAttempt("confirmed")
	c.logger.Info().
		Int64("reservation_id", res.ID).
		Int64("room_id", req.RoomID).
		Str("date", req.Date.String()).
		Str("interval", sel.Interval.String()).
		Msg("reservation confirmed")
	c.navigator.Navigate(c.opts.ReturnPath)
	return res, nil
}

// precheck runs the gates that need no network: session, then interval.
func (c *Controller) precheck(sess *session.Session, sel Selection) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	return sel.Interval.Validate()
}

// checkCapacity counts the booker plus every participant. An empty roster
// always passes.
func checkCapacity(room models.Room, participants int) error {
	if participants == 0 {
		return nil
	}
	if headcount := 1 + participants; headcount > room.Capacity {
		return &CapacityError{Headcount: headcount, Capacity: room.Capacity}
	}
	return nil
}

// fail records a rejected submission unless the response is stale.
func (c *Controller) fail(gen uint64, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		c.logger.Debug().Err(err).Msg("stale rejection discarded")
		return ErrDiscarded
	}

	c.lastErr = err
	c.state = StateRejected
	if errors.Is(err, api.ErrConflict) {
		c.state = StateWaitlistOffered
	}
	metrics.IncReservationAttempt(outcome(err))
	c.logger.Info().Err(err).Str("state", string(c.state)).Msg("reservation rejected")
	return err
}

// JoinWaitlist requests the same room/date/interval on the waitlist.
func (c *Controller) JoinWaitlist(ctx context.Context) (*models.WaitlistEntry, error) {
	c.mu.Lock()
	if c.state.InFlight() {
		c.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if c.selection == nil || !c.fsm.CanTransition(c.state, StateWaitlistSubmitting) {
		c.mu.Unlock()
		return nil, ErrWaitlistNotOffered
	}
	sel := *c.selection
	c.state = StateWaitlistSubmitting
	c.lastErr = nil
	gen := c.generation
	c.mu.Unlock()

	entry, err := c.waitlist.Create(ctx, c.sessions.Current(), waitlist.Request{
		RoomID:   sel.Room.ID,
		Date:     sel.Date,
		Interval: sel.Interval,
	})

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return nil, ErrDiscarded
	}
	if err != nil {
		c.state = StateWaitlistRejected
		c.lastErr = err
		c.mu.Unlock()
		return nil, err
	}
	c.state = StateWaitlistConfirmed
	c.entry = entry
	c.mu.Unlock()

	c.navigator.Navigate(c.opts.ReturnPath)
	return entry, nil
}

func outcome(err error) string {
	var capErr *CapacityError
	switch {
	case errors.Is(err, api.ErrConflict):
		return "conflict"
	case errors.Is(err, api.ErrUnauthorized):
		return "unauthorized"
	case errors.As(err, &capErr):
		return "capacity"
	case errors.Is(err, slots.ErrTimeMissing), errors.Is(err, slots.ErrInvalidInterval):
		return "invalid"
	case errors.Is(err, quota.ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, api.ErrTransport):
		return "transport"
	}
	return "error"
}
