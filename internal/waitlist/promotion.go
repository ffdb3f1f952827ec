package waitlist

import (
	"context"
	"sort"

	"campusbook/internal/models"
	"campusbook/internal/slots"
)

// Promoter turns the next eligible waiting entry of a room/date into a
// reservation. Whether and when it runs is the caller's policy.
type Promoter interface {
	Promote(ctx context.Context, roomID int64, date models.Date) (*models.Reservation, error)
}

// NextPromotable returns the oldest waiting entry for roomID/date whose
// interval is free of confirmed reservations. Order is creation time, then ID.
func NextPromotable(entries []models.WaitlistEntry, confirmed []models.Reservation, roomID int64, date models.Date) (models.WaitlistEntry, bool) {
	candidates := make([]models.WaitlistEntry, 0, len(entries))
	for _, e := range entries {
		if e.Status == models.WaitlistWaiting && e.RoomID == roomID && e.Date == date {
			candidates = append(candidates, e)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})

	for _, e := range candidates {
		iv := slots.Interval{Start: e.StartTime, End: e.EndTime}
		if iv.Validate() != nil {
			continue
		}
		if len(slots.FindConflicts(confirmed, roomID, date, iv)) == 0 {
			return e, true
		}
	}
	return models.WaitlistEntry{}, false
}
