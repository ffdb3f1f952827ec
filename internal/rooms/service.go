// Package rooms lists and administers classrooms.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"campusbook/internal/api"
	"campusbook/internal/models"
	"campusbook/internal/session"
	"campusbook/internal/slots"
)

// PopularLimit caps the popular-rooms list.
const PopularLimit = 5

var (
	ErrNameRequired    = errors.New("room name is required")
	ErrInvalidCapacity = errors.New("room capacity must be positive")
)

// Backend is the room part of the REST client.
type Backend interface {
	ListRooms(ctx context.Context, filter api.RoomFilter) ([]models.Room, error)
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	CreateRoom(ctx context.Context, in api.RoomInput) (*models.Room, error)
	UpdateRoom(ctx context.Context, id int64, in api.RoomInput) (*models.Room, error)
	DeleteRoom(ctx context.Context, id int64) error
	SearchAvailableRooms(ctx context.Context, date models.Date, start, end models.ClockTime) ([]models.Room, error)
	PopularRooms(ctx context.Context) ([]models.RoomUsage, error)
}

// Service wraps the backend with filtering, validation and role checks.
type Service struct {
	backend Backend
	logger  zerolog.Logger
}

func NewService(backend Backend, logger zerolog.Logger) *Service {
	return &Service{
		backend: backend,
		logger:  logger.With().Str("component", "rooms").Logger(),
	}
}

// List returns the rooms matching filter. Filtering happens locally so the
// unfiltered list stays cacheable.
func (s *Service) List(ctx context.Context, filter api.RoomFilter) ([]models.Room, error) {
	all, err := s.backend.ListRooms(ctx, api.RoomFilter{})
	if err != nil {
		return nil, err
	}
	return Filter(all, filter), nil
}

// Filter keeps rooms whose name or location contains Search (case-insensitive)
// and whose capacity is at least MinCapacity.
func Filter(rooms []models.Room, filter api.RoomFilter) []models.Room {
	term := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]models.Room, 0, len(rooms))
	for _, r := range rooms {
		if term != "" &&
			!strings.Contains(strings.ToLower(r.Name), term) &&
			!strings.Contains(strings.ToLower(r.Location), term) {
			continue
		}
		if filter.MinCapacity > 0 && r.Capacity < filter.MinCapacity {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Get fetches one room.
func (s *Service) Get(ctx context.Context, id int64) (*models.Room, error) {
	return s.backend.GetRoom(ctx, id)
}

// SearchFree lists rooms with no confirmed reservation overlapping iv on date.
func (s *Service) SearchFree(ctx context.Context, date models.Date, iv slots.Interval) ([]models.Room, error) {
	if err := iv.Validate(); err != nil {
		return nil, err
	}
	return s.backend.SearchAvailableRooms(ctx, date, iv.Start, iv.End)
}

// Popular returns the most booked rooms, busiest first.
func (s *Service) Popular(ctx context.Context) ([]models.RoomUsage, error) {
	list, err := s.backend.PopularRooms(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].ReservationCount > list[j].ReservationCount
	})
	if len(list) > PopularLimit {
		list = list[:PopularLimit]
	}
	return list, nil
}

// Create adds a room. Admin only.
func (s *Service) Create(ctx context.Context, sess *session.Session, in api.RoomInput) (*models.Room, error) {
	if err := session.RequireAdmin(sess); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, ErrNameRequired
	}
	if in.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	in.Equipments = NormalizeEquipment(in.Equipments)
	if in.Available == nil {
		available := true
		in.Available = &available
	}

	room, err := s.backend.CreateRoom(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("room_id", room.ID).Int64("by", sess.UserID()).Str("name", room.Name).Msg("room created")
	return room, nil
}

// Update changes a room. Zero-valued fields are left untouched. Admin only.
func (s *Service) Update(ctx context.Context, sess *session.Session, id int64, in api.RoomInput) (*models.Room, error) {
	if err := session.RequireAdmin(sess); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Capacity < 0 {
		return nil, ErrInvalidCapacity
	}
	in.Equipments = NormalizeEquipment(in.Equipments)

	room, err := s.backend.UpdateRoom(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("room_id", id).Int64("by", sess.UserID()).Msg("room updated")
	return room, nil
}

// Delete removes a room. Admin only.
func (s *Service) Delete(ctx context.Context, sess *session.Session, id int64) error {
	if err := session.RequireAdmin(sess); err != nil {
		return err
	}
	if err := s.backend.DeleteRoom(ctx, id); err != nil {
		return fmt.Errorf("delete room %d: %w", id, err)
	}
	s.logger.Info().Int64("room_id", id).Int64("by", sess.UserID()).Msg("room deleted")
	return nil
}

var equipmentAliases = map[string]string{
	"프로젝터":  "projector",
	"화이트보드": "whiteboard",
	"마이크":   "microphone",
	"음향시설":  "sound",
}

// NormalizeEquipment maps localized amenity names to backend keys, lowercases,
// and drops blanks and duplicates.
func NormalizeEquipment(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if alias, ok := equipmentAliases[e]; ok {
			e = alias
		}
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
