package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/bugtrail/apiserver/internal/events"
	"github.com/bugtrail/apiserver/internal/store"
	"github.com/bugtrail/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultRole is assigned when a registration omits the role.
	DefaultRole = "tester"

	// MinPasswordLength is the minimum accepted password length.
	MinPasswordLength = 6
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
}

// EventPublisher publishes account events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// UserService encapsulates credential use-cases. Password plaintext is
// hashed here, before it reaches the repository; the repository only
// ever sees bcrypt hashes.
type UserService struct {
	repo      UserRepository
	publisher EventPublisher
}

// NewUserService constructs a UserService. publisher may be nil, in
// which case account events are not emitted.
func NewUserService(repo UserRepository, publisher EventPublisher) *UserService {
	return &UserService{repo: repo, publisher: publisher}
}

// CreateAccountInput is the validated-and-normalized creation request.
// OldPassword is the provisional password the registrant is replacing;
// it is not verified against any stored secret, it only backs the
// must-differ policy check.
type CreateAccountInput struct {
	Name        string
	Email       string
	OldPassword string
	NewPassword string
	Role        string
}

// CreateAccount validates the input, hashes the new password, and
// inserts exactly one user record. The database unique constraint is
// the authoritative duplicate-email check; its violation surfaces as
// ErrEmailTaken.
func (s *UserService) CreateAccount(ctx context.Context, in CreateAccountInput) (types.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Name == "" {
		return types.User{}, validationErr("name", "name is required")
	}
	if in.Email == "" {
		return types.User{}, validationErr("email", "email is required")
	}
	if in.OldPassword == "" {
		return types.User{}, validationErr("oldPassword", "old password is required")
	}
	if in.NewPassword == "" {
		return types.User{}, validationErr("newPassword", "new password is required")
	}
	if len(in.NewPassword) < MinPasswordLength {
		return types.User{}, validationErr("newPassword", "password must be at least 6 characters")
	}
	if in.OldPassword == in.NewPassword {
		return types.User{}, validationErr("newPassword", "new password must be different from the old password")
	}

	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = DefaultRole
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Name:         in.Name,
		Email:        in.Email,
		Role:         role,
		Active:       true,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, err
	}

	s.publishEvent(ctx, events.AccountEvent{
		Type:   events.TypeUserCreated,
		UserID: user.ID,
		Email:  user.Email,
		At:     time.Now().UTC(),
	})
	return user, nil
}

// ChangePassword verifies the caller's current password and replaces it
// with a new hash. No record is mutated on any failure path; replaying
// a change with a stale old password fails with ErrInvalidCredentials.
func (s *UserService) ChangePassword(ctx context.Context, userID int, oldPassword, newPassword string) error {
	if oldPassword == "" {
		return validationErr("oldPassword", "old password is required")
	}
	if newPassword == "" {
		return validationErr("newPassword", "new password is required")
	}
	if len(newPassword) < MinPasswordLength {
		return validationErr("newPassword", "password must be at least 6 characters")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.Active {
		return ErrUserInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	// The new password is compared against the stored hash the same way
	// a candidate old password would be.
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(newPassword)); err == nil {
		return ErrSamePassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, string(hashed)); err != nil {
		return err
	}

	s.publishEvent(ctx, events.AccountEvent{
		Type:   events.TypePasswordChanged,
		UserID: user.ID,
		At:     time.Now().UTC(),
	})
	return nil
}

// Authenticate verifies an email/password pair for login.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return types.User{}, err
	}
	if !user.Active {
		return types.User{}, ErrUserInactive
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// publishEvent emits an account event. Publishing is best effort: a
// broker failure must not fail the request that triggered it.
func (s *UserService) publishEvent(ctx context.Context, event events.AccountEvent) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, events.Channel, data, map[string]string{"type": event.Type}); err != nil {
		log.Printf("publish %s event: %v", event.Type, err)
	}
}
