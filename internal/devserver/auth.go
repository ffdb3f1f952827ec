package devserver

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"campusbook/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidPassword    = errors.New("password must not be empty")
)

// Auth registers and authenticates accounts with bcrypt password hashes.
type Auth struct {
	store *Store
	cost  int
}

// NewAuth uses cost for new hashes; values outside bcrypt's range fall back
// to bcrypt.DefaultCost.
func NewAuth(store *Store, cost int) *Auth {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Auth{store: store, cost: cost}
}

func (a *Auth) Register(ctx context.Context, name, email, password string, role models.Role) (models.User, error) {
	if password == "" {
		return models.User{}, ErrInvalidPassword
	}
	if role != models.RoleAdmin {
		role = models.RoleStudent
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return models.User{}, err
	}
	return a.store.CreateUser(ctx, strings.TrimSpace(name), strings.TrimSpace(email), string(hash), role)
}

// Authenticate checks the password against the stored hash.
func (a *Auth) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	user, hash, err := a.store.UserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, ErrNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	return user, nil
}
