package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"campusbook/internal/api"
	"campusbook/internal/metrics"
	"campusbook/internal/models"
	"campusbook/internal/realtime"
	"campusbook/internal/slots"
	"campusbook/internal/waitlist"
)

const (
	maxBodyBytes = 1 << 20
	popularLimit = 5
)

// Server serves the reservation REST contract from a Store.
type Server struct {
	store     *Store
	auth      *Auth
	publisher realtime.Publisher
	promoter  waitlist.Promoter
	logger    zerolog.Logger
	mux       *http.ServeMux
}

// NewServer wires the routes. publisher and promoter may be nil; with a nil
// promoter cancelled slots are not offered to the waitlist.
func NewServer(store *Store, auth *Auth, publisher realtime.Publisher, promoter waitlist.Promoter, logger zerolog.Logger) *Server {
	s := &Server{
		store:     store,
		auth:      auth,
		publisher: publisher,
		promoter:  promoter,
		logger:    logger.With().Str("component", "devserver").Logger(),
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("POST /signup", s.handleSignup)

	s.mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	s.mux.HandleFunc("GET /api/rooms/{id}", s.handleGetRoom)
	s.mux.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	s.mux.HandleFunc("PUT /api/rooms/{id}", s.handleUpdateRoom)
	s.mux.HandleFunc("DELETE /api/rooms/{id}", s.handleDeleteRoom)
	s.mux.HandleFunc("GET /search", s.handleSearch)
	s.mux.HandleFunc("GET /api/stats/popular", s.handlePopular)

	s.mux.HandleFunc("GET /api/reservations/my/{userId}", s.handleUserReservations)
	s.mux.HandleFunc("GET /api/reservations/room/{roomId}", s.handleRoomReservations)
	s.mux.HandleFunc("POST /api/reservations", s.handleCreateReservation)
	s.mux.HandleFunc("DELETE /api/reservations/{id}", s.handleCancelReservation)

	s.mux.HandleFunc("POST /api/waitlist", s.handleCreateWaitlist)
	s.mux.HandleFunc("GET /api/waitlist/{userId}", s.handleUserWaitlist)
	s.mux.HandleFunc("DELETE /api/waitlist/{id}", s.handleCancelWaitlist)

	s.mux.HandleFunc("GET /api/notifications/{userId}", s.handleUserNotifications)
	s.mux.HandleFunc("PATCH /api/notifications/{id}", s.handleMarkRead)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// ServeHTTP logs and counts every request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	s.mux.ServeHTTP(rec, r)

	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	metrics.IncHTTP(route, strconv.Itoa(rec.status/100)+"xx")
	s.logger.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", rec.status).
		Str("request_id", r.Header.Get("X-Request-ID")).
		Dur("took", time.Since(start)).
		Msg("request")
}

// envelope mirrors the production backend's response wrapper.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, msg string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: msg, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

// writeStoreError maps store errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrOverlap), errors.Is(err, ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrRoomUnavailable), errors.Is(err, ErrOverCapacity), errors.Is(err, ErrInvalidPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func (s *Server) publish(ctx context.Context, roomID int64) {
	if s.publisher == nil {
		return
	}
	ev := realtime.Event{Type: realtime.EventReservationUpdate, RoomID: roomID}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Int64("room_id", roomID).Msg("publish reservation update")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.db.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeData(w, http.StatusOK, "ok", nil)
}

// Auth

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds api.Credentials
	if err := decodeBody(r, &creds); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := s.auth.Authenticate(r.Context(), creds.Email, creds.Password)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "login successful", "user": user})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req api.SignupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "name and email are required")
		return
	}
	user, err := s.auth.Register(r.Context(), req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	// Signup answers with the bare user object.
	writeJSON(w, http.StatusCreated, user)
}

// Rooms

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minCapacity := 0
	if c := q.Get("capacity"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid capacity")
			return
		}
		minCapacity = n
	}
	list, err := s.store.ListRooms(r.Context(), q.Get("search"), minCapacity)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, "rooms loaded", list)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	room, err := s.store.GetRoom(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, "room loaded", room)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var in api.RoomInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if in.Capacity <= 0 {
		writeError(w, http.StatusBadRequest, "capacity must be positive")
		return
	}
	room := models.Room{
		Name:        strings.TrimSpace(in.Name),
		Location:    in.Location,
		Capacity:    in.Capacity,
		Equipments:  in.Equipments,
		Available:   in.Available == nil || *in.Available,
		Description: in.Description,
	}
	room, err := s.store.CreateRoom(r.Context(), room)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "room created", room)
}

func (s *Server) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in api.RoomInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Capacity < 0 {
		writeError(w, http.StatusBadRequest, "capacity must be positive")
		return
	}

	room, err := s.store.GetRoom(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		room.Name = name
	}
	if in.Location != "" {
		room.Location = in.Location
	}
	if in.Capacity > 0 {
		room.Capacity = in.Capacity
	}
	if in.Equipments != nil {
		room.Equipments = in.Equipments
	}
	if in.Available != nil {
		room.Available = *in.Available
	}
	if in.Description != "" {
		room.Description = in.Description
	}

	if err := s.store.UpdateRoom(r.Context(), room); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, "room updated", room)
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteRoom(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.publish(r.Context(), id)
	writeData(w, http.StatusOK, "room deleted", nil)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := models.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}
	iv, err := parseInterval(q.Get("start_time"), q.Get("end_time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.store.FreeRooms(r.Context(), date, iv.Start, iv.End)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, "available rooms", list)
}

func parseInterval(start, end string) (slots.Interval, error) {
	var (
		iv  slots.Interval
		err error
	)
	if iv.Start, err = models.ParseClock(start); err != nil {
		return iv, fmt.Errorf("invalid start time: %w", err)
	}
	if iv.End, err = models.ParseClock(end); err != nil {
		return iv, fmt.Errorf("invalid end time: %w", err)
	}
	return iv, iv.Validate()
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.PopularRooms(r.Context(), popularLimit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, "popular rooms", list)
}

// Reservations

func (s *Server) handleUserReservations(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.store.UserReservations(r.Context(), userID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, "reservations loaded", list)
}

func (s *Server) handleRoomReservations(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r, "roomId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var date models.Date
	if d := r.URL.Query().Get("date"); d != "" {
		if date, err = models.ParseDate(d); err != nil {
			writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
			return
		}
	}
	list, err := s.store.RoomReservations(r.Context(), roomID, date)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, "reservations loaded", list)
}

func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req api.CreateReservationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RoomID <= 0 || req.UserID <= 0 || req.Date.IsZero() {
		writeError(w, http.StatusBadRequest, "roomId, userId and date are required")
		return
	}
	iv := slots.Interval{Start: req.StartTime, End: req.EndTime}
	if err := iv.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.store.CreateReservation(r.Context(), models.Reservation{
		RoomID:       req.RoomID,
		UserID:       req.UserID,
		Date:         req.Date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Purpose:      req.Purpose,
		Participants: req.Participants,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.Info().
		Int64("reservation_id", res.ID).
		Int64("room_id", res.RoomID).
		Int64("user_id", res.UserID).
		Str("date", res.Date.String()).
		Str("interval", iv.String()).
		Msg("reservation created")
	s.publish(r.Context(), res.RoomID)
	writeData(w, http.StatusCreated, "reservation created", res)
}

func (s *Server) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.store.CancelReservation(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info().Int64("reservation_id", id).Int64("room_id", res.RoomID).Msg("reservation cancelled")

	if s.promoter != nil {
		promoted, err := s.promoter.Promote(r.Context(), res.RoomID, res.Date)
		switch {
		case err != nil:
			s.logger.Error().Err(err).Int64("room_id", res.RoomID).Msg("waitlist promotion failed")
		case promoted != nil:
			metrics.IncWaitlistPromotion()
			s.logger.Info().
				Int64("reservation_id", promoted.ID).
				Int64("user_id", promoted.UserID).
				Msg("waitlist entry promoted")
		}
	}

	s.publish(r.Context(), res.RoomID)
	writeData(w, http.StatusOK, "reservation cancelled", res)
}

// Waitlist

func (s *Server) handleCreateWaitlist(w http.ResponseWriter, r *http.Request) {
	var req api.CreateWaitlistRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RoomID <= 0 || req.UserID <= 0 || req.Date.IsZero() {
		writeError(w, http.StatusBadRequest, "roomId, userId and date are required")
		return
	}
	if err := (slots.Interval{Start: req.StartTime, End: req.EndTime}).Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := s.store.CreateWaitlistEntry(r.Context(), models.WaitlistEntry{
		UserID:    req.UserID,
		RoomID:    req.RoomID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "waitlist entry created", entry)
}

func (s *Server) handleUserWaitlist(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.store.UserWaitlist(r.Context(), userID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, "waitlist loaded", list)
}

func (s *Server) handleCancelWaitlist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CancelWaitlistEntry(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "no waiting entry with that id")
			return
		}
		s.writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, "waitlist entry cancelled", nil)
}

// Notifications

func (s *Server) handleUserNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.store.UserNotifications(r.Context(), userID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, "notifications loaded", list)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := s.store.MarkNotificationRead(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, "notification marked read", n)
}
