package api

import (
	"context"
	"fmt"
	"net/http"

	"campusbook/internal/models"
)

// CreateWaitlistRequest is the waitlist payload.
type CreateWaitlistRequest struct {
	UserID    int64            `json:"userId"`
	RoomID    int64            `json:"roomId"`
	Date      models.Date      `json:"date"`
	StartTime models.ClockTime `json:"startTime"`
	EndTime   models.ClockTime `json:"endTime"`
}

func (c *Client) CreateWaitlistEntry(ctx context.Context, req CreateWaitlistRequest) (*models.WaitlistEntry, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/api/waitlist", req)
	if err != nil {
		return nil, fmt.Errorf("create waitlist entry: %w", err)
	}
	var entry models.WaitlistEntry
	if err := decode(resp, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// MyWaitlist returns all of a user's entries, whatever their status.
func (c *Client) MyWaitlist(ctx context.Context, userID int64) ([]models.WaitlistEntry, error) {
	resp, err := c.doGet(ctx, fmt.Sprintf("/api/waitlist/%d", userID))
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	var list []models.WaitlistEntry
	if err := decode(resp, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) CancelWaitlistEntry(ctx context.Context, id int64) error {
	if _, err := c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/waitlist/%d", id), nil); err != nil {
		return fmt.Errorf("cancel waitlist entry %d: %w", id, err)
	}
	return nil
}
