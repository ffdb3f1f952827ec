// Package booking drives a single reservation attempt from slot selection to
// a confirmed reservation or a waitlist entry.
package booking

// State represents the current state of a booking attempt.
type State string

const (
	StateIdle               State = "idle"
	StateSlotSelected       State = "slot_selected"
	StateSubmitting         State = "submitting"
	StateConfirmed          State = "confirmed"
	StateRejected           State = "rejected"
	StateWaitlistOffered    State = "waitlist_offered"
	StateWaitlistSubmitting State = "waitlist_submitting"
	StateWaitlistConfirmed  State = "waitlist_confirmed"
	StateWaitlistRejected   State = "waitlist_rejected"
)

// InFlight reports whether a request is outstanding in this state.
func (s State) InFlight() bool {
	return s == StateSubmitting || s == StateWaitlistSubmitting
}

// Terminal reports whether the attempt has finished.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateWaitlistConfirmed
}

// FSM manages state transitions for a booking attempt.
type FSM struct {
	transitions map[State][]State
}

// NewFSM creates a new FSM with predefined transitions. Every state may
// return to idle; Reset relies on that.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateIdle:               {StateSlotSelected},
			StateSlotSelected:       {StateSlotSelected, StateSubmitting, StateIdle},
			StateSubmitting:         {StateConfirmed, StateRejected, StateSlotSelected, StateIdle},
			StateConfirmed:          {StateSlotSelected, StateIdle},
			StateRejected:           {StateWaitlistOffered, StateSubmitting, StateSlotSelected, StateIdle},
			StateWaitlistOffered:    {StateWaitlistSubmitting, StateSubmitting, StateSlotSelected, StateIdle},
			StateWaitlistSubmitting: {StateWaitlistConfirmed, StateWaitlistRejected, StateSlotSelected, StateIdle},
			StateWaitlistConfirmed:  {StateSlotSelected, StateIdle},
			StateWaitlistRejected:   {StateWaitlistSubmitting, StateSlotSelected, StateIdle},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	allowed, ok := f.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StatePrompts are short status lines for each state.
var StatePrompts = map[State]string{
	StateIdle:               "Choose a room, a date and a time slot.",
	StateSlotSelected:       "Check the details and submit the reservation.",
	StateSubmitting:         "Submitting your reservation...",
	StateConfirmed:          "Reservation confirmed.",
	StateRejected:           "The reservation was not accepted.",
	StateWaitlistOffered:    "This slot is taken. You can join the waitlist.",
	StateWaitlistSubmitting: "Adding you to the waitlist...",
	StateWaitlistConfirmed:  "You are on the waitlist.",
	StateWaitlistRejected:   "The waitlist request was not accepted.",
}
