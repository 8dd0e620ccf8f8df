package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/doctors-portal/internal/models"
	"github.com/harentsoaR/doctors-portal/internal/store"
)

type UserStore interface {
	UpsertUser(ctx context.Context, u *models.User) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	PromoteUser(ctx context.Context, id primitive.ObjectID) error
}

// UserService registers users and answers role questions for the access gate.
type UserService struct {
	store  UserStore
	logger zerolog.Logger
}

func NewUserService(s UserStore, logger zerolog.Logger) *UserService {
	return &UserService{store: s, logger: logger.With().Str("component", "users").Logger()}
}

// Register creates the user on first login, or refreshes the name. New users
// are always patients whatever the caller sends.
func (s *UserService) Register(ctx context.Context, name, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	u, err := s.store.UpsertUser(ctx, &models.User{Name: strings.TrimSpace(name), Email: email})
	if err != nil {
		return nil, fmt.Errorf("services: register %q: %w", email, err)
	}
	return u, nil
}

// Find returns the user with email, or store.ErrNotFound.
func (s *UserService) Find(ctx context.Context, email string) (*models.User, error) {
	return s.store.FindUserByEmail(ctx, email)
}

// IsAdmin reports whether email belongs to an admin. Unknown emails are not
// admins.
func (s *UserService) IsAdmin(ctx context.Context, email string) (bool, error) {
	u, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("services: admin check for %q: %w", email, err)
	}
	return u.IsAdmin(), nil
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("services: list users: %w", err)
	}
	return users, nil
}

// Promote makes the user with targetID an admin. The actor must already be
// an admin; that is checked before the target id is even parsed.
func (s *UserService) Promote(ctx context.Context, actorEmail, targetID string) error {
	ok, err := s.IsAdmin(ctx, actorEmail)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not an admin", ErrForbidden, actorEmail)
	}

	id, err := primitive.ObjectIDFromHex(targetID)
	if err != nil {
		return fmt.Errorf("%w: user id %q", ErrInvalidID, targetID)
	}
	if err := s.store.PromoteUser(ctx, id); err != nil {
		return fmt.Errorf("services: promote %s: %w", targetID, err)
	}
	s.logger.Info().Str("actor", actorEmail).Str("user_id", targetID).Msg("user promoted to admin")
	return nil
}
