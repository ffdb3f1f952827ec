// Package reservations splits a user's reservation list into the active list
// and the history kept for cancelled bookings.
package reservations

import (
	"sort"

	"campusbook/internal/models"
)

// Active filters reservations down to those still holding their slot.
func Active(list []models.Reservation) []models.Reservation {
	out := make([]models.Reservation, 0, len(list))
	for i := range list {
		if list[i].IsActive() {
			out = append(out, list[i])
		}
	}
	return out
}

// History returns the cancelled reservations. The backend keeps their rows.
func History(list []models.Reservation) []models.Reservation {
	out := make([]models.Reservation, 0, len(list))
	for i := range list {
		if !list[i].IsActive() {
			out = append(out, list[i])
		}
	}
	return out
}

// SortByStart orders reservations by date, then start time, then ID.
func SortByStart(list []models.Reservation) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}
