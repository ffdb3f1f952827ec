package booking

import (
	"strconv"
	"strings"
	"sync"

	"campusbook/internal/models"
)

// Roster collects the participants of a reservation besides the reserver.
type Roster struct {
	mu      sync.Mutex
	members []int64
	guests  []string

	// legacyNumericGuests sends digit-only guest labels as member ids, the
	// way the backend has always received them.
	legacyNumericGuests bool
}

func NewRoster(legacyNumericGuests bool) *Roster {
	return &Roster{legacyNumericGuests: legacyNumericGuests}
}

// AddMember adds a registered user. Duplicates are ignored.
func (r *Roster) AddMember(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m == id {
			return false
		}
	}
	r.members = append(r.members, id)
	return true
}

func (r *Roster) RemoveMember(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.members {
		if m == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return
		}
	}
}

// AddGuest adds a free-text participant. The label is trimmed; empty labels
// and exact duplicates are ignored.
func (r *Roster) AddGuest(label string) bool {
	label = strings.TrimSpace(label)
	if label == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.guests {
		if g == label {
			return false
		}
	}
	r.guests = append(r.guests, label)
	return true
}

func (r *Roster) RemoveGuest(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, g := range r.guests {
		if g == label {
			r.guests = append(r.guests[:i], r.guests[i+1:]...)
			return
		}
	}
}

// Len is the number of participants, reserver excluded.
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members) + len(r.guests)
}

// Headcount is the number of seats needed, reserver included.
func (r *Roster) Headcount() int {
	return 1 + r.Len()
}

// Participants returns members followed by guests, in insertion order.
func (r *Roster) Participants() []models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Participant, 0, len(r.members)+len(r.guests))
	for _, id := range r.members {
		out = append(out, models.Member(id))
	}
	for _, g := range r.guests {
		if r.legacyNumericGuests {
			if id, err := strconv.ParseInt(g, 10, 64); err == nil {
				out = append(out, models.Member(id))
				continue
			}
		}
		out = append(out, models.Guest(g))
	}
	return out
}

func (r *Roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = nil
	r.guests = nil
}
