package api

import (
	"context"
	"fmt"
	"net/http"

	"campusbook/internal/models"
)

func (c *Client) MyNotifications(ctx context.Context, userID int64) ([]models.Notification, error) {
	resp, err := c.doGet(ctx, fmt.Sprintf("/api/notifications/%d", userID))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	var list []models.Notification
	if err := decode(resp, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkNotificationRead acknowledges a notification. The returned entry is nil
// when the backend acks without a body.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) (*models.Notification, error) {
	resp, err := c.doJSON(ctx, http.MethodPatch, fmt.Sprintf("/api/notifications/%d", id), nil)
	if err != nil {
		return nil, fmt.Errorf("mark notification %d read: %w", id, err)
	}
	if len(resp.payload()) == 0 {
		return nil, nil
	}
	var n models.Notification
	if err := decode(resp, &n); err != nil {
		return nil, err
	}
	return &n, nil
}
