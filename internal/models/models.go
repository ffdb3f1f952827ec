package models

import "time"

// Role of a signed-in user.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// User is the identity returned by the backend on login/signup.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role,omitempty"`
	Token string `json:"token,omitempty"`
}

// Room is a bookable classroom.
type Room struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Location    string   `json:"location"` // building + floor, e.g. "Main hall 2F"
	Capacity    int      `json:"capacity"`
	Equipments  []string `json:"equipments,omitempty"`
	Available   bool     `json:"available"`
	Description string   `json:"description,omitempty"`
}

// HasEquipment reports whether the room lists the given equipment.
func (r *Room) HasEquipment(name string) bool {
	for _, e := range r.Equipments {
		if e == name {
			return true
		}
	}
	return false
}

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationPending   ReservationStatus = "pending"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation holds a room for [StartTime, EndTime) on Date.
type Reservation struct {
	ID           int64             `json:"id"`
	RoomID       int64             `json:"roomId"`
	UserID       int64             `json:"userId"`
	UserName     string            `json:"userName,omitempty"`
	Date         Date              `json:"date"`
	StartTime    ClockTime         `json:"startTime"`
	EndTime      ClockTime         `json:"endTime"`
	Purpose      string            `json:"purpose"`
	Participants []Participant     `json:"participants"`
	Status       ReservationStatus `json:"status"`
	Room         *Room             `json:"room,omitempty"`
	CreatedAt    time.Time         `json:"createdAt,omitempty"`
}

// IsActive reports whether the reservation still holds its slot.
func (r *Reservation) IsActive() bool {
	return r.Status != ReservationCancelled
}

// Duration returns the reserved span.
func (r *Reservation) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// StartsAt returns the reservation start as an instant in loc.
func (r *Reservation) StartsAt(loc *time.Location) time.Time {
	return r.StartTime.On(r.Date, loc)
}

// WaitlistStatus is the lifecycle state of a waitlist entry.
type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "waiting"
	WaitlistFulfilled WaitlistStatus = "fulfilled"
	WaitlistCancelled WaitlistStatus = "cancelled"
)

// WaitlistEntry is a standing request for a slot that was unavailable.
type WaitlistEntry struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"userId"`
	RoomID    int64          `json:"roomId"`
	Date      Date           `json:"date"`
	StartTime ClockTime      `json:"startTime"`
	EndTime   ClockTime      `json:"endTime"`
	Status    WaitlistStatus `json:"status"`
	CreatedAt time.Time      `json:"createdAt,omitempty"`
}

// Notification is a backend-generated message for one user.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}

// RoomUsage is one row of the popular-rooms statistic.
type RoomUsage struct {
	RoomID           int64  `json:"roomId"`
	Name             string `json:"name"`
	Location         string `json:"location"`
	ReservationCount int    `json:"reservationCount"`
}
