package reservations

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"campusbook/internal/models"
)

func res(id int64, day int, start int, status models.ReservationStatus) models.Reservation {
	return models.Reservation{
		ID:        id,
		Date:      models.Date{Year: 2026, Month: 10, Day: day},
		StartTime: models.Clock(start, 0),
		EndTime:   models.Clock(start+1, 0),
		Status:    status,
	}
}

func ids(list []models.Reservation) []int64 {
	out := make([]int64, 0, len(list))
	for _, r := range list {
		out = append(out, r.ID)
	}
	return out
}

func TestActiveAndHistory(t *testing.T) {
	list := []models.Reservation{
		res(1, 19, 9, models.ReservationConfirmed),
		res(2, 19, 10, models.ReservationCancelled),
		res(3, 20, 9, models.ReservationPending),
		res(4, 21, 9, models.ReservationCancelled),
	}

	assert.Equal(t, []int64{1, 3}, ids(Active(list)))
	assert.Equal(t, []int64{2, 4}, ids(History(list)))
	assert.Len(t, list, 4, "filters must not modify the input")
}

func TestActive_CancelledReservationLeavesActiveList(t *testing.T) {
	r := res(7, 19, 9, models.ReservationConfirmed)
	list := []models.Reservation{r}
	assert.Equal(t, []int64{7}, ids(Active(list)))

	list[0].Status = models.ReservationCancelled
	assert.Empty(t, Active(list))
	assert.Equal(t, []int64{7}, ids(History(list)))
}

func TestActive_Empty(t *testing.T) {
	assert.Empty(t, Active(nil))
	assert.Empty(t, History(nil))
}

func TestSortByStart(t *testing.T) {
	list := []models.Reservation{
		res(3, 20, 9, models.ReservationConfirmed),
		res(2, 19, 14, models.ReservationConfirmed),
		res(5, 19, 9, models.ReservationConfirmed),
		res(1, 19, 9, models.ReservationConfirmed),
	}
	SortByStart(list)
	assert.Equal(t, []int64{1, 5, 2, 3}, ids(list))
}
