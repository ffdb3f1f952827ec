package devserver

import (
	"context"
	"errors"
	"fmt"

	"campusbook/internal/models"
)

// SeedPassword is the password of the seeded accounts.
const SeedPassword = "campus1234"

var seedRooms = []models.Room{
	{Name: "A강의실", Location: "본관 1층", Capacity: 30, Available: true, Equipments: []string{"projector", "whiteboard"}, Description: "중형 강의실"},
	{Name: "B강의실", Location: "본관 1층", Capacity: 50, Available: true, Equipments: []string{"projector"}, Description: "대형 강의실"},
	{Name: "C강의실", Location: "본관 2층", Capacity: 40, Available: false, Equipments: []string{"whiteboard"}, Description: "중형 강의실"},
	{Name: "D강의실", Location: "본관 2층", Capacity: 60, Available: true, Equipments: []string{"projector", "microphone"}, Description: "대형 강의실"},
	{Name: "E강의실", Location: "본관 3층", Capacity: 35, Available: true, Equipments: []string{"projector", "whiteboard", "microphone"}, Description: "최신 시설 강의실"},
	{Name: "F강의실", Location: "본관 3층", Capacity: 45, Available: true, Equipments: []string{"projector"}, Description: "중형 강의실"},
	{Name: "L101", Location: "도서관 1층", Capacity: 25, Available: true, Equipments: []string{"projector"}, Description: "스터디룸"},
	{Name: "L201", Location: "도서관 2층", Capacity: 30, Available: true, Equipments: []string{"whiteboard"}, Description: "세미나실"},
	{Name: "L202", Location: "도서관 2층", Capacity: 20, Available: false, Equipments: []string{"projector"}, Description: "스터디룸"},
	{Name: "S101", Location: "과학관 1층", Capacity: 50, Available: true, Equipments: []string{"projector", "microphone", "sound"}, Description: "대형 강의실"},
	{Name: "S201", Location: "과학관 2층", Capacity: 40, Available: true, Equipments: []string{"projector", "whiteboard"}, Description: "중형 강의실"},
	{Name: "A101", Location: "예술관 1층", Capacity: 30, Available: true, Equipments: []string{"projector", "sound"}, Description: "음악실"},
	{Name: "A201", Location: "예술관 2층", Capacity: 25, Available: true, Equipments: []string{"whiteboard"}, Description: "미술실"},
}

var seedUsers = []struct {
	name, email string
	role        models.Role
}{
	{"Admin", "admin@campus.ac.kr", models.RoleAdmin},
	{"Student", "student@campus.ac.kr", models.RoleStudent},
}

// Seed fills an empty database with the campus rooms and two accounts.
// It does nothing when rooms already exist.
func Seed(ctx context.Context, store *Store, auth *Auth) error {
	var n int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&n); err != nil {
		return fmt.Errorf("count rooms: %w", err)
	}
	if n > 0 {
		return nil
	}

	for _, r := range seedRooms {
		if _, err := store.CreateRoom(ctx, r); err != nil {
			return fmt.Errorf("seed room %s: %w", r.Name, err)
		}
	}
	for _, u := range seedUsers {
		if _, err := auth.Register(ctx, u.name, u.email, SeedPassword, u.role); err != nil && !errors.Is(err, ErrEmailTaken) {
			return fmt.Errorf("seed user %s: %w", u.email, err)
		}
	}
	return nil
}
