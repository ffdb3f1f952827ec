package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"campusbook/internal/models"
	"campusbook/internal/slots"
	"campusbook/internal/waitlist"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrOverlap         = errors.New("the room is already reserved for an overlapping time")
	ErrEmailTaken      = errors.New("email already registered")
	ErrRoomUnavailable = errors.New("room is not available for reservations")
	ErrOverCapacity    = errors.New("participants exceed room capacity")
)

// Store holds the dev backend's queries.
type Store struct {
	db  *DB
	now func() time.Time
}

func NewStore(db *DB) *Store {
	return &Store{db: db, now: time.Now}
}

type scanner interface {
	Scan(dest ...any) error
}

// Users

func (s *Store) CreateUser(ctx context.Context, name, email, passwordHash string, role models.Role) (models.User, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, role) VALUES (?, ?, ?, ?)",
		name, strings.ToLower(email), passwordHash, string(role),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, err
	}
	return models.User{ID: id, Name: name, Email: strings.ToLower(email), Role: role}, nil
}

// UserByEmail returns the user and its password hash.
func (s *Store) UserByEmail(ctx context.Context, email string) (models.User, string, error) {
	var (
		u    models.User
		role string
		hash string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, role, password_hash FROM users WHERE email = ?",
		strings.ToLower(email),
	).Scan(&u.ID, &u.Name, &u.Email, &role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, "", ErrNotFound
	}
	if err != nil {
		return models.User{}, "", err
	}
	u.Role = models.Role(role)
	return u, hash, nil
}

// Rooms

const roomColumns = "id, name, location, capacity, equipments, available, description"

func scanRoom(row scanner) (models.Room, error) {
	var (
		r          models.Room
		equipments string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Location, &r.Capacity, &equipments, &r.Available, &r.Description); err != nil {
		return models.Room{}, err
	}
	if err := json.Unmarshal([]byte(equipments), &r.Equipments); err != nil {
		return models.Room{}, fmt.Errorf("room %d equipments: %w", r.ID, err)
	}
	return r, nil
}

func (s *Store) queryRooms(ctx context.Context, query string, args ...any) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Room{}
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// ListRooms filters by a name/location substring and minimum capacity.
func (s *Store) ListRooms(ctx context.Context, search string, minCapacity int) ([]models.Room, error) {
	like := "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
	return s.queryRooms(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE (LOWER(name) LIKE ? OR LOWER(location) LIKE ?) AND capacity >= ? ORDER BY id",
		like, like, minCapacity,
	)
}

func (s *Store) GetRoom(ctx context.Context, id int64) (models.Room, error) {
	r, err := scanRoom(s.db.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrNotFound
	}
	return r, err
}

func (s *Store) CreateRoom(ctx context.Context, r models.Room) (models.Room, error) {
	if r.Equipments == nil {
		r.Equipments = []string{}
	}
	equipments, err := json.Marshal(r.Equipments)
	if err != nil {
		return models.Room{}, err
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO rooms (name, location, capacity, equipments, available, description) VALUES (?, ?, ?, ?, ?, ?)",
		r.Name, r.Location, r.Capacity, string(equipments), r.Available, r.Description,
	)
	if err != nil {
		return models.Room{}, fmt.Errorf("insert room: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return models.Room{}, err
	}
	return r, nil
}

// UpdateRoom replaces the stored room with r.
func (s *Store) UpdateRoom(ctx context.Context, r models.Room) error {
	if r.Equipments == nil {
		r.Equipments = []string{}
	}
	equipments, err := json.Marshal(r.Equipments)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE rooms SET name = ?, location = ?, capacity = ?, equipments = ?, available = ?, description = ? WHERE id = ?",
		r.Name, r.Location, r.Capacity, string(equipments), r.Available, r.Description, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) DeleteRoom(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return requireAffected(res)
}

// FreeRooms lists available rooms without a confirmed reservation
// overlapping [start, end) on date.
func (s *Store) FreeRooms(ctx context.Context, date models.Date, start, end models.ClockTime) ([]models.Room, error) {
	return s.queryRooms(ctx, `
		SELECT `+roomColumns+` FROM rooms
		WHERE available = 1 AND id NOT IN (
			SELECT room_id FROM reservations
			WHERE date = ? AND status = 'confirmed' AND start_time < ? AND end_time > ?
		)
		ORDER BY id`,
		date.String(), end.String(), start.String(),
	)
}

// PopularRooms ranks rooms by confirmed reservation count.
func (s *Store) PopularRooms(ctx context.Context, limit int) ([]models.RoomUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rm.id, rm.name, rm.location, COUNT(r.id) AS cnt
		FROM rooms rm
		JOIN reservations r ON r.room_id = rm.id AND r.status = 'confirmed'
		GROUP BY rm.id
		ORDER BY cnt DESC, rm.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.RoomUsage{}
	for rows.Next() {
		var u models.RoomUsage
		if err := rows.Scan(&u.RoomID, &u.Name, &u.Location, &u.ReservationCount); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// Reservations

const reservationQuery = `
	SELECT r.id, r.room_id, r.user_id, COALESCE(u.name, ''), r.date, r.start_time, r.end_time,
		r.purpose, r.participants, r.status, r.created_at,
		COALESCE(rm.name, ''), COALESCE(rm.location, ''), COALESCE(rm.capacity, 0)
	FROM reservations r
	LEFT JOIN users u ON u.id = r.user_id
	LEFT JOIN rooms rm ON rm.id = r.room_id`

func scanReservation(row scanner) (models.Reservation, error) {
	var (
		r                    models.Reservation
		date, start, end     string
		participants, status string
		roomName, roomLoc    string
		roomCapacity         int
	)
	err := row.Scan(&r.ID, &r.RoomID, &r.UserID, &r.UserName, &date, &start, &end,
		&r.Purpose, &participants, &status, &r.CreatedAt,
		&roomName, &roomLoc, &roomCapacity)
	if err != nil {
		return models.Reservation{}, err
	}
	if r.Date, err = models.ParseDate(date); err != nil {
		return models.Reservation{}, err
	}
	if r.StartTime, err = models.ParseClock(start); err != nil {
		return models.Reservation{}, err
	}
	if r.EndTime, err = models.ParseClock(end); err != nil {
		return models.Reservation{}, err
	}
	if err := json.Unmarshal([]byte(participants), &r.Participants); err != nil {
		return models.Reservation{}, fmt.Errorf("reservation %d participants: %w", r.ID, err)
	}
	r.Status = models.ReservationStatus(status)
	r.Room = &models.Room{ID: r.RoomID, Name: roomName, Location: roomLoc, Capacity: roomCapacity}
	return r, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryReservations(ctx context.Context, q querier, where string, args ...any) ([]models.Reservation, error) {
	rows, err := q.QueryContext(ctx, reservationQuery+" WHERE "+where+" ORDER BY r.date, r.start_time, r.id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

func (s *Store) UserReservations(ctx context.Context, userID int64) ([]models.Reservation, error) {
	return queryReservations(ctx, s.db, "r.user_id = ?", userID)
}

// RoomReservations returns a room's reservations of every status. A zero date
// means every date.
func (s *Store) RoomReservations(ctx context.Context, roomID int64, date models.Date) ([]models.Reservation, error) {
	if date.IsZero() {
		return queryReservations(ctx, s.db, "r.room_id = ?", roomID)
	}
	return queryReservations(ctx, s.db, "r.room_id = ? AND r.date = ?", roomID, date.String())
}

func (s *Store) GetReservation(ctx context.Context, id int64) (models.Reservation, error) {
	r, err := scanReservation(s.db.QueryRowContext(ctx, reservationQuery+" WHERE r.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reservation{}, ErrNotFound
	}
	return r, err
}

// CreateReservation inserts a confirmed reservation unless it overlaps a
// confirmed one of the same room and date.
func (s *Store) CreateReservation(ctx context.Context, r models.Reservation) (models.Reservation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Reservation{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		capacity  int
		available bool
	)
	err = tx.QueryRowContext(ctx, "SELECT capacity, available FROM rooms WHERE id = ?", r.RoomID).Scan(&capacity, &available)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reservation{}, fmt.Errorf("room %d: %w", r.RoomID, ErrNotFound)
	}
	if err != nil {
		return models.Reservation{}, err
	}
	if !available {
		return models.Reservation{}, ErrRoomUnavailable
	}
	if len(r.Participants)+1 > capacity {
		return models.Reservation{}, ErrOverCapacity
	}

	if err := checkOverlap(ctx, tx, r.RoomID, r.Date, slots.Interval{Start: r.StartTime, End: r.EndTime}); err != nil {
		return models.Reservation{}, err
	}

	id, err := insertReservation(ctx, tx, r, s.now().UTC())
	if err != nil {
		return models.Reservation{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Reservation{}, err
	}
	return s.GetReservation(ctx, id)
}

func checkOverlap(ctx context.Context, tx *sql.Tx, roomID int64, date models.Date, iv slots.Interval) error {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE room_id = ? AND date = ? AND status = 'confirmed' AND start_time < ? AND end_time > ?`,
		roomID, date.String(), iv.End.String(), iv.Start.String(),
	).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrOverlap
	}
	return nil
}

func insertReservation(ctx context.Context, tx *sql.Tx, r models.Reservation, at time.Time) (int64, error) {
	if r.Participants == nil {
		r.Participants = []models.Participant{}
	}
	participants, err := json.Marshal(r.Participants)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (room_id, user_id, date, start_time, end_time, purpose, participants, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'confirmed', ?)`,
		r.RoomID, r.UserID, r.Date.String(), r.StartTime.String(), r.EndTime.String(), r.Purpose, string(participants), at,
	)
	if err != nil {
		return 0, fmt.Errorf("insert reservation: %w", err)
	}
	return res.LastInsertId()
}

// CancelReservation marks the row cancelled; the row itself is kept.
func (s *Store) CancelReservation(ctx context.Context, id int64) (models.Reservation, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE reservations SET status = 'cancelled' WHERE id = ?", id)
	if err != nil {
		return models.Reservation{}, fmt.Errorf("cancel reservation: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return models.Reservation{}, err
	}
	return s.GetReservation(ctx, id)
}

// Waitlist

const waitlistColumns = "id, user_id, room_id, date, start_time, end_time, status, created_at"

func scanWaitlist(row scanner) (models.WaitlistEntry, error) {
	var (
		e                       models.WaitlistEntry
		date, start, end, state string
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.RoomID, &date, &start, &end, &state, &e.CreatedAt); err != nil {
		return models.WaitlistEntry{}, err
	}
	var err error
	if e.Date, err = models.ParseDate(date); err != nil {
		return models.WaitlistEntry{}, err
	}
	if e.StartTime, err = models.ParseClock(start); err != nil {
		return models.WaitlistEntry{}, err
	}
	if e.EndTime, err = models.ParseClock(end); err != nil {
		return models.WaitlistEntry{}, err
	}
	e.Status = models.WaitlistStatus(state)
	return e, nil
}

func queryWaitlist(ctx context.Context, q querier, where string, args ...any) ([]models.WaitlistEntry, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+waitlistColumns+" FROM waitlist WHERE "+where+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.WaitlistEntry{}
	for rows.Next() {
		e, err := scanWaitlist(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (s *Store) CreateWaitlistEntry(ctx context.Context, e models.WaitlistEntry) (models.WaitlistEntry, error) {
	e.Status = models.WaitlistWaiting
	e.CreatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO waitlist (user_id, room_id, date, start_time, end_time, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.RoomID, e.Date.String(), e.StartTime.String(), e.EndTime.String(), string(e.Status), e.CreatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return models.WaitlistEntry{}, fmt.Errorf("room %d: %w", e.RoomID, ErrNotFound)
		}
		return models.WaitlistEntry{}, fmt.Errorf("insert waitlist entry: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return models.WaitlistEntry{}, err
	}
	return e, nil
}

func (s *Store) UserWaitlist(ctx context.Context, userID int64) ([]models.WaitlistEntry, error) {
	return queryWaitlist(ctx, s.db, "user_id = ?", userID)
}

// CancelWaitlistEntry cancels a waiting entry. Entries that are missing or no
// longer waiting report ErrNotFound.
func (s *Store) CancelWaitlistEntry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE waitlist SET status = 'cancelled' WHERE id = ? AND status = 'waiting'", id)
	if err != nil {
		return fmt.Errorf("cancel waitlist entry: %w", err)
	}
	return requireAffected(res)
}

// Promote fulfils the oldest waiting entry of roomID/date whose interval is
// free, booking it for the entry's user and notifying them. It returns nil
// when nothing can be promoted.
func (s *Store) Promote(ctx context.Context, roomID int64, date models.Date) (*models.Reservation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	entries, err := queryWaitlist(ctx, tx, "room_id = ? AND date = ? AND status = 'waiting'", roomID, date.String())
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	confirmed, err := queryReservations(ctx, tx, "r.room_id = ? AND r.date = ? AND r.status = 'confirmed'", roomID, date.String())
	if err != nil {
		return nil, err
	}

	entry, ok := waitlist.NextPromotable(entries, confirmed, roomID, date)
	if !ok {
		return nil, nil
	}

	now := s.now().UTC()
	id, err := insertReservation(ctx, tx, models.Reservation{
		RoomID:    roomID,
		UserID:    entry.UserID,
		Date:      date,
		StartTime: entry.StartTime,
		EndTime:   entry.EndTime,
		Purpose:   "waitlist",
	}, now)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE waitlist SET status = 'fulfilled' WHERE id = ?", entry.ID); err != nil {
		return nil, fmt.Errorf("fulfil waitlist entry: %w", err)
	}
	msg := fmt.Sprintf("Your waitlist request for %s %s was fulfilled and is now reserved.",
		date, slots.Interval{Start: entry.StartTime, End: entry.EndTime})
	if err := insertNotification(ctx, tx, entry.UserID, msg, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	r, err := s.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Notifications

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertNotification(ctx context.Context, ex execer, userID int64, message string, at time.Time) error {
	_, err := ex.ExecContext(ctx,
		"INSERT INTO notifications (user_id, message, is_read, created_at) VALUES (?, ?, 0, ?)",
		userID, message, at,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) CreateNotification(ctx context.Context, userID int64, message string) error {
	return insertNotification(ctx, s.db, userID, message, s.now().UTC())
}

func (s *Store) UserNotifications(ctx context.Context, userID int64) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, message, is_read, created_at FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id int64) (models.Notification, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE notifications SET is_read = 1 WHERE id = ?", id)
	if err != nil {
		return models.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return models.Notification{}, err
	}
	var n models.Notification
	err = s.db.QueryRowContext(ctx,
		"SELECT id, user_id, message, is_read, created_at FROM notifications WHERE id = ?", id,
	).Scan(&n.ID, &n.UserID, &n.Message, &n.Read, &n.CreatedAt)
	return n, err
}

// Reminders

// UnremindedBetween returns confirmed reservations dated from..to (inclusive)
// that have not had a reminder yet.
func (s *Store) UnremindedBetween(ctx context.Context, from, to models.Date) ([]models.Reservation, error) {
	return queryReservations(ctx, s.db,
		"r.status = 'confirmed' AND r.reminded = 0 AND r.date >= ? AND r.date <= ?",
		from.String(), to.String(),
	)
}

func (s *Store) MarkReminded(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE reservations SET reminded = 1 WHERE id = ?", id)
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
