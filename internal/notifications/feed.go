package notifications

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"campusbook/internal/api"
	"campusbook/internal/models"
	"campusbook/internal/session"
)

// Backend is the notification part of the REST client.
type Backend interface {
	MyNotifications(ctx context.Context, userID int64) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) (*models.Notification, error)
}

// SessionSource yields the signed-in user.
type SessionSource interface {
	Current() *session.Session
}

// Feed is the current user's notification list.
type Feed struct {
	backend  Backend
	sessions SessionSource

	mu    sync.RWMutex
	items []models.Notification
}

func NewFeed(backend Backend, sessions SessionSource) *Feed {
	return &Feed{backend: backend, sessions: sessions}
}

// Refresh reloads the list, newest first.
func (f *Feed) Refresh(ctx context.Context) ([]models.Notification, error) {
	sess := f.sessions.Current()
	if err := session.Require(sess); err != nil {
		return nil, err
	}

	list, err := f.backend.MyNotifications(ctx, sess.UserID())
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	f.mu.Lock()
	f.items = list
	f.mu.Unlock()
	return f.Items(), nil
}

// Items returns a copy of the loaded list.
func (f *Feed) Items() []models.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]models.Notification(nil), f.items...)
}

// MarkRead acknowledges a notification. Local state changes only after the
// backend confirms, and only the read flag is touched.
func (f *Feed) MarkRead(ctx context.Context, id int64) error {
	if _, err := f.backend.MarkNotificationRead(ctx, id); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("notification %d not loaded: %w", id, api.ErrNotFound)
}

// MarkAllRead acknowledges every unread notification, stopping at the first failure.
func (f *Feed) MarkAllRead(ctx context.Context) error {
	for _, n := range f.Items() {
		if n.Read {
			continue
		}
		if err := f.MarkRead(ctx, n.ID); err != nil {
			return err
		}
	}
	return nil
}

// UnreadCount is derived from the loaded list.
func (f *Feed) UnreadCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, item := range f.items {
		if !item.Read {
			n++
		}
	}
	return n
}

// Clear drops the loaded list, e.g. on logout.
func (f *Feed) Clear() {
	f.mu.Lock()
	f.items = nil
	f.mu.Unlock()
}
