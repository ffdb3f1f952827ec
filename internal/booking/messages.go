package booking

import (
	"errors"
	"fmt"

	"campusbook/internal/api"
	"campusbook/internal/quota"
	"campusbook/internal/slots"
)

var (
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrNoSlotSelected     = errors.New("no slot selected")
	ErrWaitlistNotOffered = errors.New("waitlist is not offered for this attempt")
	ErrCapacityExceeded   = errors.New("room capacity exceeded")
	ErrDiscarded          = errors.New("response discarded after the selection changed")
)

// CapacityError reports a headcount above the room capacity.
type CapacityError struct {
	Headcount int
	Capacity  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%d participants exceed capacity %d", e.Headcount, e.Capacity)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// UserMessage converts an error into text fit to show the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		capErr   *CapacityError
		quotaErr *quota.ExceededError
	)
	switch {
	case errors.Is(err, ErrSubmissionInFlight):
		return "Your request is still being processed."
	case errors.Is(err, ErrNoSlotSelected):
		return "Please choose a room, a date and a time slot first."
	case errors.Is(err, ErrWaitlistNotOffered):
		return "The waitlist is only available for slots that are already taken."
	case errors.Is(err, slots.ErrTimeMissing):
		return "Please choose both a start time and an end time."
	case errors.Is(err, slots.ErrInvalidInterval):
		return "The end time must be later than the start time."
	case errors.As(err, &quotaErr):
		return fmt.Sprintf("You can hold at most %d upcoming reservations. Cancel one before booking again.", quotaErr.Ceiling)
	case errors.Is(err, quota.ErrQuotaExceeded):
		return "You have reached the limit of upcoming reservations."
	case errors.As(err, &capErr):
		return fmt.Sprintf("%d people (including you) exceed the room capacity of %d.", capErr.Headcount, capErr.Capacity)
	case errors.Is(err, api.ErrConflict):
		return "This time slot is already reserved. You can join the waitlist instead."
	case errors.Is(err, api.ErrUnauthorized):
		return "Please log in first."
	case errors.Is(err, api.ErrForbidden):
		return "You do not have permission to do that."
	case errors.Is(err, api.ErrNotFound):
		return "The room or reservation no longer exists."
	case errors.Is(err, api.ErrTransport):
		return "Cannot reach the reservation server. Please try again."
	}

	if msg := api.Message(err); msg != "" {
		return msg
	}
	return "Something went wrong. Please try again."
}
