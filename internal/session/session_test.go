package session

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"campusbook/internal/api"
	"campusbook/internal/models"
)

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) Login(ctx context.Context, creds api.Credentials) (*models.User, error) {
	args := m.Called(ctx, creds)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuth) Signup(ctx context.Context, req api.SignupRequest) (*models.User, error) {
	args := m.Called(ctx, req)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestManager_LoginLogout(t *testing.T) {
	auth := new(mockAuth)
	m := NewManager(auth, zerolog.New(io.Discard))
	ctx := context.Background()

	auth.On("Login", ctx, api.Credentials{Email: "kim@uni.ac.kr", Password: "pw"}).
		Return(&models.User{ID: 7, Name: "Kim", Email: "kim@uni.ac.kr"}, nil).Once()

	assert.Nil(t, m.Current())

	s, err := m.Login(ctx, " kim@uni.ac.kr ", "pw", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.UserID())
	assert.True(t, s.IsAdmin(), "requested role is kept when the backend omits it")
	assert.Same(t, s, m.Current())

	m.Logout()
	assert.Nil(t, m.Current())
	assert.ErrorIs(t, Require(m.Current()), api.ErrUnauthorized)

	auth.AssertExpectations(t)
}

func TestManager_LoginValidation(t *testing.T) {
	auth := new(mockAuth)
	m := NewManager(auth, zerolog.Nop())

	_, err := m.Login(context.Background(), "", "pw", models.RoleStudent)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	auth.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
}

func TestManager_LoginFailureKeepsPreviousState(t *testing.T) {
	auth := new(mockAuth)
	m := NewManager(auth, zerolog.Nop())
	auth.On("Login", mock.Anything, mock.Anything).Return(nil, &api.APIError{Status: 401, Message: "bad password"})

	_, err := m.Login(context.Background(), "a@b.c", "x", models.RoleStudent)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.Nil(t, m.Current())
}

func TestManager_Signup(t *testing.T) {
	auth := new(mockAuth)
	m := NewManager(auth, zerolog.Nop())
	req := api.SignupRequest{Name: "Lee", Email: "lee@uni.ac.kr", Password: "pw", Role: models.RoleStudent}
	auth.On("Signup", mock.Anything, req).Return(&models.User{ID: 9, Name: "Lee", Role: models.RoleStudent}, nil)

	s, err := m.Signup(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, s.IsAdmin())
	assert.NoError(t, Require(s))
	assert.ErrorIs(t, RequireAdmin(s), api.ErrForbidden)

	_, err = m.Signup(context.Background(), api.SignupRequest{Email: "x"})
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestNilSession(t *testing.T) {
	var s *Session
	assert.False(t, s.Authenticated())
	assert.Equal(t, int64(0), s.UserID())
	assert.False(t, s.IsAdmin())
}
