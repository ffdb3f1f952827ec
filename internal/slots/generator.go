package slots

import (
	"context"
	"fmt"
	"sort"
	"time"

	"campusbook/internal/models"
)

// Slot represents a candidate time slot.
type Slot struct {
	Start     models.ClockTime
	End       models.ClockTime
	Available bool
}

// SlotInfo is a simplified representation for display.
type SlotInfo struct {
	Start     string `json:"start"` // "10:00"
	End       string `json:"end"`   // "11:00"
	Available bool   `json:"available"`
}

// Grid describes the discovery grid for one day.
type Grid struct {
	Start models.ClockTime
	End   models.ClockTime
	Step  time.Duration
}

// DefaultGrid is 09:00-18:00 in one-hour steps.
func DefaultGrid() Grid {
	return Grid{Start: models.Clock(9, 0), End: models.Clock(18, 0), Step: time.Hour}
}

// Validate checks the grid bounds.
func (g Grid) Validate() error {
	if !g.Start.IsSet() || !g.End.IsSet() {
		return fmt.Errorf("grid bounds must be set")
	}
	if g.Start >= g.End {
		return fmt.Errorf("grid start %s must be before end %s", g.Start, g.End)
	}
	if g.Step < time.Minute {
		return fmt.Errorf("grid step must be at least one minute, got %s", g.Step)
	}
	return nil
}

// Intervals returns every step-sized interval that fits inside the grid.
func (g Grid) Intervals() []Interval {
	if g.Validate() != nil {
		return nil
	}
	var out []Interval
	for cursor := g.Start; cursor.Add(g.Step) <= g.End; cursor = cursor.Add(g.Step) {
		out = append(out, Interval{Start: cursor, End: cursor.Add(g.Step)})
	}
	return out
}

// BookingChecker checks if a slot is booked.
type BookingChecker interface {
	IsSlotBooked(ctx context.Context, roomID int64, date models.Date, iv Interval) (bool, error)
}

// Generator generates slots for a date.
type Generator struct {
	checker BookingChecker
	grid    Grid
}

// NewGenerator creates a new slot generator. An invalid grid falls back to DefaultGrid.
func NewGenerator(checker BookingChecker, grid Grid) *Generator {
	if grid.Validate() != nil {
		grid = DefaultGrid()
	}
	return &Generator{checker: checker, grid: grid}
}

// Grid returns the active grid.
func (g *Generator) Grid() Grid {
	return g.grid
}

// Candidates returns the plain grid, independent of backend availability.
func (g *Generator) Candidates() []Slot {
	ivs := g.grid.Intervals()
	out := make([]Slot, len(ivs))
	for i, iv := range ivs {
		out[i] = Slot{Start: iv.Start, End: iv.End, Available: true}
	}
	return out
}

// Slots returns the grid for a date with availability from the checker.
func (g *Generator) Slots(ctx context.Context, roomID int64, date models.Date) ([]Slot, error) {
	slots := g.Candidates()
	if g.checker == nil {
		return slots, nil
	}

	for i := range slots {
		booked, err := g.checker.IsSlotBooked(ctx, roomID, date, Interval{Start: slots[i].Start, End: slots[i].End})
		if err != nil {
			return nil, fmt.Errorf("check slot %s: %w", slots[i].Start, err)
		}
		slots[i].Available = !booked
	}
	return slots, nil
}

// ToSlotInfo converts slots to SlotInfo.
func ToSlotInfo(slots []Slot) []SlotInfo {
	result := make([]SlotInfo, len(slots))
	for i, s := range slots {
		result[i] = SlotInfo{
			Start:     s.Start.String(),
			End:       s.End.String(),
			Available: s.Available,
		}
	}
	return result
}

// GetAvailableSlots returns only available slots.
func GetAvailableSlots(slots []Slot) []Slot {
	var available []Slot
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	return available
}

// FindConsecutiveSlots finds groups of consecutive available slots.
func FindConsecutiveSlots(slots []Slot) [][]Slot {
	available := GetAvailableSlots(slots)
	if len(available) == 0 {
		return nil
	}

	sort.Slice(available, func(i, j int) bool {
		return available[i].Start < available[j].Start
	})

	var groups [][]Slot
	currentGroup := []Slot{available[0]}

	for i := 1; i < len(available); i++ {
		if available[i].Start == currentGroup[len(currentGroup)-1].End {
			currentGroup = append(currentGroup, available[i])
		} else {
			groups = append(groups, currentGroup)
			currentGroup = []Slot{available[i]}
		}
	}
	groups = append(groups, currentGroup)

	return groups
}

// Merge collapses a run of consecutive slots into one interval.
func Merge(group []Slot) (Interval, bool) {
	if len(group) == 0 {
		return Interval{}, false
	}
	return Interval{Start: group[0].Start, End: group[len(group)-1].End}, true
}
