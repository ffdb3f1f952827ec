package booking

import (
	"testing"
)

func TestFSMTransitions(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		name        string
		from        State
		to          State
		shouldAllow bool
	}{
		{"idle to slot selected", StateIdle, StateSlotSelected, true},
		{"slot selected to submitting", StateSlotSelected, StateSubmitting, true},
		{"submitting to confirmed", StateSubmitting, StateConfirmed, true},
		{"submitting to rejected", StateSubmitting, StateRejected, true},
		{"rejected to waitlist offered", StateRejected, StateWaitlistOffered, true},
		{"waitlist offered to submitting", StateWaitlistOffered, StateWaitlistSubmitting, true},
		{"waitlist submitting to confirmed", StateWaitlistSubmitting, StateWaitlistConfirmed, true},
		{"waitlist submitting to rejected", StateWaitlistSubmitting, StateWaitlistRejected, true},
		// Retries
		{"rejected resubmit", StateRejected, StateSubmitting, true},
		{"waitlist rejected retry", StateWaitlistRejected, StateWaitlistSubmitting, true},
		// Invalid transitions
		{"idle to submitting", StateIdle, StateSubmitting, false},
		{"idle to confirmed", StateIdle, StateConfirmed, false},
		{"slot selected to waitlist", StateSlotSelected, StateWaitlistSubmitting, false},
		{"rejected to waitlist without offer", StateRejected, StateWaitlistSubmitting, false},
		{"confirmed to submitting", StateConfirmed, StateSubmitting, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed := fsm.CanTransition(tt.from, tt.to)
			if allowed != tt.shouldAllow {
				t.Errorf("transition %s -> %s: expected allowed=%v, got %v",
					tt.from, tt.to, tt.shouldAllow, allowed)
			}
		})
	}
}

func TestFSMEveryStateCanReset(t *testing.T) {
	fsm := NewFSM()
	for state := range StatePrompts {
		if state == StateIdle {
			continue
		}
		if !fsm.CanTransition(state, StateIdle) {
			t.Errorf("state %s cannot return to idle", state)
		}
	}
}

func TestStatePromptsCoverAllStates(t *testing.T) {
	fsm := NewFSM()
	for state := range fsm.transitions {
		if StatePrompts[state] == "" {
			t.Errorf("missing prompt for state %s", state)
		}
	}
}

func TestStateFlags(t *testing.T) {
	if !StateSubmitting.InFlight() || !StateWaitlistSubmitting.InFlight() {
		t.Error("submitting states must be in flight")
	}
	if StateRejected.InFlight() {
		t.Error("rejected is not in flight")
	}
	if !StateConfirmed.Terminal() || StateWaitlistOffered.Terminal() {
		t.Error("unexpected terminal flags")
	}
}
