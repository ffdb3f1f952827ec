package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"campusbook/internal/models"
)

// Credentials for POST /login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest for POST /signup.
type SignupRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

// Login authenticates and returns the user.
func (c *Client) Login(ctx context.Context, creds Credentials) (*models.User, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/login", creds)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	var user models.User
	if err := decode(resp, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, errors.New("login: response carries no user")
	}
	return &user, nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*models.User, error) {
	if req.Role == "" {
		req.Role = models.RoleStudent
	}
	resp, err := c.doJSON(ctx, http.MethodPost, "/signup", req)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	var user models.User
	if err := decode(resp, &user); err != nil {
		return nil, err
	}
	if user.Role == "" {
		user.Role = req.Role
	}
	return &user, nil
}

// PopularRooms returns the most booked rooms (top 5 on the backend).
func (c *Client) PopularRooms(ctx context.Context) ([]models.RoomUsage, error) {
	resp, err := c.doGet(ctx, "/api/stats/popular")
	if err != nil {
		return nil, fmt.Errorf("popular rooms: %w", err)
	}
	var list []models.RoomUsage
	if err := decode(resp, &list); err != nil {
		return nil, err
	}
	return list, nil
}
