package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"campusbook/internal/models"
)

const roomsCachePrefix = "campusbook:rooms:"

// RoomFilter narrows the room list. Zero values mean "no filter".
type RoomFilter struct {
	Search      string
	MinCapacity int
}

func (f RoomFilter) query() string {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.MinCapacity > 0 {
		q.Set("capacity", strconv.Itoa(f.MinCapacity))
	}
	return q.Encode()
}

// RoomInput is the admin create/update payload.
type RoomInput struct {
	Name        string   `json:"name,omitempty"`
	Location    string   `json:"location,omitempty"`
	Capacity    int      `json:"capacity,omitempty"`
	Equipments  []string `json:"equipments,omitempty"`
	Available   *bool    `json:"available,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ListRooms returns rooms, served from the Redis cache when configured.
func (c *Client) ListRooms(ctx context.Context, filter RoomFilter) ([]models.Room, error) {
	path := "/api/rooms"
	q := filter.query()
	if q != "" {
		path += "?" + q
	}
	cacheKey := roomsCachePrefix + q

	var rooms []models.Room
	if c.readCache(ctx, cacheKey, &rooms) {
		return rooms, nil
	}

	resp, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if err := decode(resp, &rooms); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, rooms)
	return rooms, nil
}

// GetRoom fetches one room.
func (c *Client) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	resp, err := c.doGet(ctx, fmt.Sprintf("/api/rooms/%d", id))
	if err != nil {
		return nil, fmt.Errorf("get room %d: %w", id, err)
	}
	var room models.Room
	if err := decode(resp, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// CreateRoom adds a room (admin).
func (c *Client) CreateRoom(ctx context.Context, in RoomInput) (*models.Room, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/api/rooms", in)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	c.invalidateRooms(ctx)
	var room models.Room
	if err := decode(resp, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// UpdateRoom changes a room (admin). Empty fields are left as they are.
func (c *Client) UpdateRoom(ctx context.Context, id int64, in RoomInput) (*models.Room, error) {
	resp, err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/api/rooms/%d", id), in)
	if err != nil {
		return nil, fmt.Errorf("update room %d: %w", id, err)
	}
	c.invalidateRooms(ctx)
	var room models.Room
	if err := decode(resp, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// DeleteRoom removes a room (admin).
func (c *Client) DeleteRoom(ctx context.Context, id int64) error {
	if _, err := c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/rooms/%d", id), nil); err != nil {
		return fmt.Errorf("delete room %d: %w", id, err)
	}
	c.invalidateRooms(ctx)
	return nil
}

// SearchAvailableRooms lists rooms free for the whole [start, end) on date.
func (c *Client) SearchAvailableRooms(ctx context.Context, date models.Date, start, end models.ClockTime) ([]models.Room, error) {
	q := url.Values{}
	q.Set("date", date.String())
	q.Set("start_time", start.String())
	q.Set("end_time", end.String())

	resp, err := c.doGet(ctx, "/search?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("search rooms: %w", err)
	}
	var rooms []models.Room
	if err := decode(resp, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *Client) invalidateRooms(ctx context.Context) {
	if c.redis == nil {
		return
	}
	iter := c.redis.Scan(ctx, 0, roomsCachePrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Debug().Err(err).Msg("scan room cache")
		return
	}
	if len(keys) > 0 {
		c.dropCache(ctx, keys...)
	}
}
