package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"campusbook/internal/models"
	"campusbook/internal/realtime"
	"campusbook/internal/waitlist"
)

const (
	adminID   int64 = 1
	studentID int64 = 2
	testDate        = "2030-05-14"
)

type testEnv struct {
	db    *DB
	store *Store
	bus   *realtime.Bus
	srv   *httptest.Server
}

func newTestEnv(t *testing.T, autoPromote bool) *testEnv {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "campusbook.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewStore(db)
	auth := NewAuth(store, bcrypt.MinCost)
	require.NoError(t, Seed(context.Background(), store, auth))

	bus := realtime.NewBus()
	var promoter waitlist.Promoter
	if autoPromote {
		promoter = store
	}
	ts := httptest.NewServer(NewServer(store, auth, bus, promoter, zerolog.Nop()))
	t.Cleanup(ts.Close)

	return &testEnv{db: db, store: store, bus: bus, srv: ts}
}

type testResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	User    json.RawMessage `json:"user"`
}

func (e *testEnv) call(t *testing.T, method, path string, body any) (int, testResponse, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw bytes.Buffer
	_, err = raw.ReadFrom(resp.Body)
	require.NoError(t, err)

	var out testResponse
	_ = json.Unmarshal(raw.Bytes(), &out)
	return resp.StatusCode, out, raw.Bytes()
}

func reservationBody(roomID, userID int64, start, end string, participants ...any) map[string]any {
	if participants == nil {
		participants = []any{}
	}
	return map[string]any{
		"roomId":       roomID,
		"userId":       userID,
		"date":         testDate,
		"startTime":    start,
		"endTime":      end,
		"purpose":      "study group",
		"participants": participants,
	}
}

func decodeData[T any](t *testing.T, resp testResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	return v
}

func TestServer_Auth(t *testing.T) {
	env := newTestEnv(t, false)

	status, resp, _ := env.call(t, http.MethodPost, "/login", map[string]string{
		"email": "student@campus.ac.kr", "password": SeedPassword,
	})
	require.Equal(t, http.StatusOK, status)
	var user models.User
	require.NoError(t, json.Unmarshal(resp.User, &user))
	assert.Equal(t, studentID, user.ID)
	assert.Equal(t, models.RoleStudent, user.Role)

	status, _, _ = env.call(t, http.MethodPost, "/login", map[string]string{
		"email": "student@campus.ac.kr", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _, raw := env.call(t, http.MethodPost, "/signup", map[string]string{
		"name": "Lee", "email": "lee@campus.ac.kr", "password": "pw", "role": "student",
	})
	require.Equal(t, http.StatusCreated, status)
	var created models.User
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.Equal(t, "Lee", created.Name)
	assert.NotZero(t, created.ID)

	status, _, _ = env.call(t, http.MethodPost, "/signup", map[string]string{
		"name": "Lee", "email": "LEE@campus.ac.kr", "password": "pw",
	})
	assert.Equal(t, http.StatusConflict, status)
}

func TestServer_ReservationOverlap(t *testing.T) {
	env := newTestEnv(t, false)

	sub, err := env.bus.Subscribe(context.Background(), 1)
	require.NoError(t, err)
	defer sub.Close()

	status, resp, _ := env.call(t, http.MethodPost, "/api/reservations", reservationBody(1, studentID, "09:00", "10:00", 5, "guest"))
	require.Equal(t, http.StatusCreated, status, resp.Message)
	first := decodeData[models.Reservation](t, resp)
	assert.Equal(t, models.ReservationConfirmed, first.Status)
	assert.Equal(t, []models.Participant{models.Member(5), models.Guest("guest")}, first.Participants)
	assert.Equal(t, "A강의실", first.Room.Name)

	select {
	case ev := <-sub.C():
		assert.Equal(t, int64(1), ev.RoomID)
	case <-time.After(time.Second):
		t.Fatal("no reservation update published")
	}

	status, resp, _ = env.call(t, http.MethodPost, "/api/reservations", reservationBody(1, adminID, "09:30", "10:30"))
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, resp.Message, "overlapping")

	status, _, _ = env.call(t, http.MethodPost, "/api/reservations", reservationBody(1, adminID, "10:00", "11:00"))
	assert.Equal(t, http.StatusCreated, status, "adjacent intervals do not overlap")

	status, _, _ = env.call(t, http.MethodPost, "/api/reservations", reservationBody(2, adminID, "09:30", "10:30"))
	assert.Equal(t, http.StatusCreated, status, "other rooms are independent")

	status, resp, _ = env.call(t, http.MethodDelete, "/api/reservations/1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.ReservationCancelled, decodeData[models.Reservation](t, resp).Status)

	status, resp, _ = env.call(t, http.MethodGet, "/api/reservations/room/1?date="+testDate, nil)
	require.Equal(t, http.StatusOK, status)
	list := decodeData[[]models.Reservation](t, resp)
	require.Len(t, list, 2, "cancelled rows are kept")

	status, _, _ = env.call(t, http.MethodPost, "/api/reservations", reservationBody(1, adminID, "09:00", "10:00"))
	assert.Equal(t, http.StatusCreated, status, "cancelled reservations no longer block")
}

func TestServer_ReservationValidation(t *testing.T) {
	env := newTestEnv(t, false)

	guests := make([]any, 30)
	for i := range guests {
		guests[i] = "guest"
	}

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"reversed interval", reservationBody(1, studentID, "10:00", "09:00"), http.StatusBadRequest},
		{"missing user", reservationBody(1, 0, "09:00", "10:00"), http.StatusBadRequest},
		{"unknown room", reservationBody(99, studentID, "09:00", "10:00"), http.StatusNotFound},
		{"unavailable room", reservationBody(3, studentID, "09:00", "10:00"), http.StatusBadRequest},
		{"over capacity", reservationBody(1, studentID, "09:00", "10:00", guests...), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, _ := env.call(t, http.MethodPost, "/api/reservations", tt.body)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestServer_MyReservations(t *testing.T) {
	env := newTestEnv(t, false)
	status, _, _ := env.call(t, http.MethodPost, "/api/reservations", reservationBody(7, studentID, "13:00", "14:00"))
	require.Equal(t, http.StatusCreated, status)

	status, resp, _ := env.call(t, http.MethodGet, "/api/reservations/my/2", nil)
	require.Equal(t, http.StatusOK, status)
	list := decodeData[[]models.Reservation](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, "Student", list[0].UserName)
	assert.Equal(t, models.Clock(13, 0), list[0].StartTime)

	status, resp, _ = env.call(t, http.MethodGet, "/api/reservations/my/1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decodeData[[]models.Reservation](t, resp))
}

func TestServer_Waitlist(t *testing.T) {
	env := newTestEnv(t, false)

	body := map[string]any{"userId": studentID, "roomId": 1, "date": testDate, "startTime": "09:00", "endTime": "10:00"}
	status, resp, _ := env.call(t, http.MethodPost, "/api/waitlist", body)
	require.Equal(t, http.StatusCreated, status)
	entry := decodeData[models.WaitlistEntry](t, resp)
	assert.Equal(t, models.WaitlistWaiting, entry.Status)

	status, resp, _ = env.call(t, http.MethodGet, "/api/waitlist/2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[[]models.WaitlistEntry](t, resp), 1)

	status, _, _ = env.call(t, http.MethodDelete, "/api/waitlist/1", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _, _ = env.call(t, http.MethodDelete, "/api/waitlist/1", nil)
	assert.Equal(t, http.StatusNotFound, status, "second cancel finds no waiting entry")

	body["roomId"] = 99
	status, _, _ = env.call(t, http.MethodPost, "/api/waitlist", body)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_CancelPromotesWaitlist(t *testing.T) {
	env := newTestEnv(t, true)

	status, _, _ := env.call(t, http.MethodPost, "/api/reservations", reservationBody(1, studentID, "09:00", "11:00"))
	require.Equal(t, http.StatusCreated, status)

	// Still blocked by the 11:00 booking below, so it is skipped.
	blocked := map[string]any{"userId": studentID, "roomId": 1, "date": testDate, "startTime": "10:00", "endTime": "12:00"}
	status, _, _ = env.call(t, http.MethodPost, "/api/waitlist", blocked)
	require.Equal(t, http.StatusCreated, status)
	status, _, _ = env.call(t, http.MethodPost, "/api/reservations", reservationBody(1, studentID, "11:00", "12:00"))
	require.Equal(t, http.StatusCreated, status)

	wanted := map[string]any{"userId": adminID, "roomId": 1, "date": testDate, "startTime": "09:00", "endTime": "10:00"}
	status, _, _ = env.call(t, http.MethodPost, "/api/waitlist", wanted)
	require.Equal(t, http.StatusCreated, status)

	status, _, _ = env.call(t, http.MethodDelete, "/api/reservations/1", nil)
	require.Equal(t, http.StatusOK, status)

	status, resp, _ := env.call(t, http.MethodGet, "/api/reservations/my/1", nil)
	require.Equal(t, http.StatusOK, status)
	promoted := decodeData[[]models.Reservation](t, resp)
	require.Len(t, promoted, 1)
	assert.Equal(t, models.Clock(9, 0), promoted[0].StartTime)
	assert.Equal(t, models.ReservationConfirmed, promoted[0].Status)

	status, resp, _ = env.call(t, http.MethodGet, "/api/waitlist/1", nil)
	require.Equal(t, http.StatusOK, status)
	entries := decodeData[[]models.WaitlistEntry](t, resp)
	require.Len(t, entries, 1)
	assert.Equal(t, models.WaitlistFulfilled, entries[0].Status)

	status, resp, _ = env.call(t, http.MethodGet, "/api/waitlist/2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.WaitlistWaiting, decodeData[[]models.WaitlistEntry](t, resp)[0].Status)

	status, resp, _ = env.call(t, http.MethodGet, "/api/notifications/1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[[]models.Notification](t, resp), 1)
}

func TestServer_CancelWithoutPromotion(t *testing.T) {
	env := newTestEnv(t, false)

	status, _, _ := env.call(t, http.MethodPost, "/api/reservations", reservationBody(1, studentID, "09:00", "10:00"))
	require.Equal(t, http.StatusCreated, status)
	wanted := map[string]any{"userId": adminID, "roomId": 1, "date": testDate, "startTime": "09:00", "endTime": "10:00"}
	status, _, _ = env.call(t, http.MethodPost, "/api/waitlist", wanted)
	require.Equal(t, http.StatusCreated, status)

	status, _, _ = env.call(t, http.MethodDelete, "/api/reservations/1", nil)
	require.Equal(t, http.StatusOK, status)

	status, resp, _ := env.call(t, http.MethodGet, "/api/waitlist/1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.WaitlistWaiting, decodeData[[]models.WaitlistEntry](t, resp)[0].Status)
}

func TestServer_Rooms(t *testing.T) {
	env := newTestEnv(t, false)

	status, resp, _ := env.call(t, http.MethodGet, "/api/rooms", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[[]models.Room](t, resp), len(seedRooms))

	status, resp, _ = env.call(t, http.MethodGet, "/api/rooms?search=도서관&capacity=25", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[[]models.Room](t, resp), 2)

	status, _, _ = env.call(t, http.MethodGet, "/api/rooms?capacity=x", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = env.call(t, http.MethodPost, "/api/rooms", map[string]any{"name": "", "capacity": 10})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _, _ = env.call(t, http.MethodPost, "/api/rooms", map[string]any{"name": "G101", "capacity": 0})
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp, _ = env.call(t, http.MethodPost, "/api/rooms", map[string]any{
		"name": "G101", "location": "체육관 1층", "capacity": 20, "equipments": []string{"projector"},
	})
	require.Equal(t, http.StatusCreated, status)
	room := decodeData[models.Room](t, resp)
	assert.True(t, room.Available)

	status, resp, _ = env.call(t, http.MethodPut, "/api/rooms/14", map[string]any{"capacity": 25, "available": false})
	require.Equal(t, http.StatusOK, status)
	room = decodeData[models.Room](t, resp)
	assert.Equal(t, 25, room.Capacity)
	assert.Equal(t, "G101", room.Name)
	assert.False(t, room.Available)

	status, _, _ = env.call(t, http.MethodDelete, "/api/rooms/14", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _, _ = env.call(t, http.MethodGet, "/api/rooms/14", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _, _ = env.call(t, http.MethodGet, "/api/rooms/abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_SearchAndPopular(t *testing.T) {
	env := newTestEnv(t, false)
	for _, body := range []map[string]any{
		reservationBody(1, studentID, "09:00", "10:00"),
		reservationBody(1, studentID, "10:00", "11:00"),
		reservationBody(2, studentID, "09:30", "10:30"),
	} {
		status, _, _ := env.call(t, http.MethodPost, "/api/reservations", body)
		require.Equal(t, http.StatusCreated, status)
	}

	status, resp, _ := env.call(t, http.MethodGet, "/search?date="+testDate+"&start_time=09:00&end_time=10:00", nil)
	require.Equal(t, http.StatusOK, status)
	free := decodeData[[]models.Room](t, resp)
	for _, r := range free {
		assert.NotContains(t, []int64{1, 2, 3, 9}, r.ID, "booked or unavailable rooms are not free")
	}
	assert.Len(t, free, len(seedRooms)-4)

	status, _, _ = env.call(t, http.MethodGet, "/search?date="+testDate+"&start_time=10:00&end_time=09:00", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp, _ = env.call(t, http.MethodGet, "/api/stats/popular", nil)
	require.Equal(t, http.StatusOK, status)
	popular := decodeData[[]models.RoomUsage](t, resp)
	require.Len(t, popular, 2)
	assert.Equal(t, int64(1), popular[0].RoomID)
	assert.Equal(t, 2, popular[0].ReservationCount)
}

func TestServer_Notifications(t *testing.T) {
	env := newTestEnv(t, false)
	require.NoError(t, env.store.CreateNotification(context.Background(), studentID, "hello"))

	status, resp, _ := env.call(t, http.MethodGet, "/api/notifications/2", nil)
	require.Equal(t, http.StatusOK, status)
	list := decodeData[[]models.Notification](t, resp)
	require.Len(t, list, 1)
	assert.False(t, list[0].Read)

	status, resp, _ = env.call(t, http.MethodPatch, "/api/notifications/1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decodeData[models.Notification](t, resp).Read)

	status, _, _ = env.call(t, http.MethodPatch, "/api/notifications/42", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestReminderService_CheckOnce(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	date, err := models.ParseDate(testDate)
	require.NoError(t, err)

	for _, iv := range [][2]int{{9, 10}, {10, 11}} {
		_, err := env.store.CreateReservation(ctx, models.Reservation{
			RoomID: 1, UserID: studentID, Date: date,
			StartTime: models.Clock(iv[0], 0), EndTime: models.Clock(iv[1], 0),
		})
		require.NoError(t, err)
	}

	svc := NewReminderService(ReminderConfig{Location: time.UTC}, env.store, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2030, 5, 14, 8, 40, 0, 0, time.UTC) }

	sent, err := svc.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "only the 09:00 reservation is within 30 minutes")

	sent, err = svc.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent, "reminders are not repeated")

	list, err := env.store.UserNotifications(ctx, studentID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Contains(t, list[0].Message, "A강의실")
	assert.Contains(t, list[0].Message, "09:00")
}

func TestBackupService(t *testing.T) {
	env := newTestEnv(t, false)
	dir := t.TempDir()
	svc := NewBackupService(env.db, BackupConfig{Enabled: true, Dir: dir, Retention: time.Hour}, zerolog.Nop())

	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	restored, err := OpenDB(path)
	require.NoError(t, err)
	defer restored.Close()
	rooms, err := NewStore(restored).ListRooms(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, rooms, len(seedRooms))

	old := filepath.Join(dir, "backup_20000101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	svc.CleanupOldBackups()
	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
