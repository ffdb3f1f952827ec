// Package realtime delivers reservation change signals. Events only tell a
// view that its data is stale; they never carry the changed reservation.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventReservationUpdate is emitted whenever a room's reservations change.
const EventReservationUpdate = "reservationUpdate"

// AllRooms subscribes to every room.
const AllRooms int64 = 0

const subscriptionBuffer = 8

// Event is a reservation change signal.
type Event struct {
	Type       string    `json:"type,omitempty"`
	RoomID     int64     `json:"roomId"`
	ReceivedAt time.Time `json:"-"`
}

// Feed hands out subscriptions scoped to one room.
type Feed interface {
	Subscribe(ctx context.Context, roomID int64) (*Subscription, error)
}

// Publisher emits events to a feed.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscription is a live registration on a Feed. C is closed after Close,
// which is idempotent and also runs when the subscribing context ends.
type Subscription struct {
	id     string
	roomID int64
	ch     chan Event

	once      sync.Once
	stop      func()
	stopAfter func() bool
}

func newSubscription(roomID int64) *Subscription {
	return &Subscription{
		id:     uuid.NewString(),
		roomID: roomID,
		ch:     make(chan Event, subscriptionBuffer),
	}
}

// bind installs the teardown and ties it to ctx.
func (s *Subscription) bind(ctx context.Context, stop func()) {
	s.stop = stop
	s.stopAfter = context.AfterFunc(ctx, s.Close)
}

func (s *Subscription) ID() string      { return s.id }
func (s *Subscription) RoomID() int64  { return s.roomID }
func (s *Subscription) C() <-chan Event { return s.ch }

// Close unregisters the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.stopAfter != nil {
			s.stopAfter()
		}
		if s.stop != nil {
			s.stop()
		}
	})
}

func (s *Subscription) matches(ev Event) bool {
	return s.roomID == AllRooms || s.roomID == ev.RoomID
}

// offer delivers without blocking. A full buffer already holds a pending
// refetch signal, so dropping is safe.
func (s *Subscription) offer(ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}
