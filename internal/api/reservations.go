package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"campusbook/internal/models"
)

// CreateReservationRequest is the booking payload.
type CreateReservationRequest struct {
	RoomID       int64                `json:"roomId"`
	UserID       int64                `json:"userId"`
	Date         models.Date          `json:"date"`
	StartTime    models.ClockTime     `json:"startTime"`
	EndTime      models.ClockTime     `json:"endTime"`
	Purpose      string               `json:"purpose"`
	Participants []models.Participant `json:"participants"`
}

// MyReservations lists every reservation of a user, cancelled ones included.
// Reservations are never cached.
func (c *Client) MyReservations(ctx context.Context, userID int64) ([]models.Reservation, error) {
	resp, err := c.doGet(ctx, fmt.Sprintf("/api/reservations/my/%d", userID))
	if err != nil {
		return nil, fmt.Errorf("list my reservations: %w", err)
	}
	var list []models.Reservation
	if err := decode(resp, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// RoomReservations lists the reservations of a room. A zero date lists all dates.
func (c *Client) RoomReservations(ctx context.Context, roomID int64, date models.Date) ([]models.Reservation, error) {
	path := fmt.Sprintf("/api/reservations/room/%d", roomID)
	if !date.IsZero() {
		path += "?date=" + url.QueryEscape(date.String())
	}

	resp, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("list room reservations: %w", err)
	}
	var list []models.Reservation
	if err := decode(resp, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// CreateReservation submits a booking. The backend has the final word on conflicts.
func (c *Client) CreateReservation(ctx context.Context, req CreateReservationRequest) (*models.Reservation, error) {
	if req.Participants == nil {
		req.Participants = []models.Participant{}
	}

	resp, err := c.doJSON(ctx, http.MethodPost, "/api/reservations", req)
	if err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}
	var r models.Reservation
	if err := decode(resp, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CancelReservation cancels a reservation. The row stays in the user's history.
func (c *Client) CancelReservation(ctx context.Context, id int64) error {
	if _, err := c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/reservations/%d", id), nil); err != nil {
		return fmt.Errorf("cancel reservation %d: %w", id, err)
	}
	return nil
}
