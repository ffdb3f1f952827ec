package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("slot already reserved")
	ErrTransport    = errors.New("backend unreachable")
)

// DefaultConflictKeywords are matched case-insensitively against backend messages.
var DefaultConflictKeywords = []string{
	"overlap",
	"duplicate",
	"already reserved",
	"conflict",
	"이미 예약",
	"중복",
}

// APIError is a non-success backend response. Conflict is set by the client
// for reservation and waitlist writes answered with 409 or a conflict keyword.
type APIError struct {
	Status   int
	Message  string
	Conflict bool
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Unwrap maps the status to one of the package sentinels so callers can use errors.Is.
// Auth and lookup statuses win over the conflict flag.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	}
	if e.Conflict {
		return ErrConflict
	}
	return nil
}

// IsConflictMessage reports whether msg mentions any of the keywords.
func IsConflictMessage(msg string, keywords []string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Message extracts the backend message from err, if any.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
