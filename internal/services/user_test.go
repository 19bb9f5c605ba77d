package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/bugtrail/apiserver/internal/events"
	"github.com/bugtrail/apiserver/internal/store"
	"github.com/bugtrail/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

type fakeUserRepo struct {
	users  map[int]types.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int]types.User{}, nextID: 1}
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
	user.ID = r.nextID
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	r.users[id] = user
	return nil
}

type capturingPublisher struct {
	channels []string
	payloads [][]byte
}

func (p *capturingPublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, data)
	return "msg-1", nil
}

func validCreateInput() CreateAccountInput {
	return CreateAccountInput{
		Name:        "Alice",
		Email:       "alice@example.com",
		OldPassword: "default1",
		NewPassword: "secret1",
	}
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		repo := newFakeUserRepo()
		publisher := &capturingPublisher{}
		svc := NewUserService(repo, publisher)

		user, err := svc.CreateAccount(ctx, CreateAccountInput{
			Name:        "  Alice  ",
			Email:       "  Alice@Example.COM ",
			OldPassword: "default1",
			NewPassword: "secret1",
		})
		if err != nil {
			t.Fatalf("create account: %v", err)
		}
		if user.Name != "Alice" {
			t.Errorf("name not trimmed: %q", user.Name)
		}
		if user.Email != "alice@example.com" {
			t.Errorf("email not normalized: %q", user.Email)
		}
		if user.Role != DefaultRole {
			t.Errorf("expected default role, got %q", user.Role)
		}
		if !user.Active {
			t.Error("expected new account to be active")
		}
		if len(repo.users) != 1 {
			t.Fatalf("expected exactly one record, got %d", len(repo.users))
		}

		stored := repo.users[user.ID]
		if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret1")); err != nil {
			t.Error("stored hash does not verify against new password")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("default1")); err == nil {
			t.Error("stored hash must not verify against old password")
		}

		if len(publisher.channels) != 1 || publisher.channels[0] != events.Channel {
			t.Fatalf("expected one event on %q, got %v", events.Channel, publisher.channels)
		}
		var event events.AccountEvent
		if err := json.Unmarshal(publisher.payloads[0], &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if event.Type != events.TypeUserCreated || event.UserID != user.ID {
			t.Errorf("unexpected event: %+v", event)
		}
	})

	t.Run("explicit role kept", func(t *testing.T) {
		svc := NewUserService(newFakeUserRepo(), nil)
		in := validCreateInput()
		in.Role = "admin"
		user, err := svc.CreateAccount(ctx, in)
		if err != nil {
			t.Fatalf("create account: %v", err)
		}
		if user.Role != "admin" {
			t.Errorf("expected admin role, got %q", user.Role)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		cases := []struct {
			field string
			mut   func(*CreateAccountInput)
		}{
			{"name", func(in *CreateAccountInput) { in.Name = " " }},
			{"email", func(in *CreateAccountInput) { in.Email = "" }},
			{"oldPassword", func(in *CreateAccountInput) { in.OldPassword = "" }},
			{"newPassword", func(in *CreateAccountInput) { in.NewPassword = "" }},
		}
		for _, tc := range cases {
			repo := newFakeUserRepo()
			svc := NewUserService(repo, nil)
			in := validCreateInput()
			tc.mut(&in)

			_, err := svc.CreateAccount(ctx, in)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("%s: expected ValidationError, got %v", tc.field, err)
			}
			if validationErr.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, validationErr.Field)
			}
			if len(repo.users) != 0 {
				t.Errorf("%s: no record must be created on validation failure", tc.field)
			}
		}
	})

	t.Run("short password", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := NewUserService(repo, nil)
		in := validCreateInput()
		in.NewPassword = "abc12"

		_, err := svc.CreateAccount(ctx, in)
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) || validationErr.Field != "newPassword" {
			t.Fatalf("expected newPassword validation error, got %v", err)
		}
		if len(repo.users) != 0 {
			t.Error("no record must be created")
		}
	})

	t.Run("old equals new", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := NewUserService(repo, nil)
		in := validCreateInput()
		in.OldPassword = "secret1"
		in.NewPassword = "secret1"

		_, err := svc.CreateAccount(ctx, in)
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if len(repo.users) != 0 {
			t.Error("no record must be created")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := NewUserService(repo, nil)

		if _, err := svc.CreateAccount(ctx, validCreateInput()); err != nil {
			t.Fatalf("first create: %v", err)
		}

		in := validCreateInput()
		in.Email = "ALICE@example.com"
		_, err := svc.CreateAccount(ctx, in)
		if !errors.Is(err, ErrEmailTaken) {
			t.Fatalf("expected ErrEmailTaken, got %v", err)
		}
		if len(repo.users) != 1 {
			t.Errorf("duplicate create must not add a record, got %d", len(repo.users))
		}
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, repo *fakeUserRepo, password string, active bool) types.User {
		t.Helper()
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		user, err := repo.Create(ctx, types.User{
			Name:         "Bob",
			Email:        "bob@example.com",
			Role:         DefaultRole,
			Active:       active,
			PasswordHash: string(hashed),
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		return user
	}

	t.Run("success", func(t *testing.T) {
		repo := newFakeUserRepo()
		publisher := &capturingPublisher{}
		svc := NewUserService(repo, publisher)
		user := seed(t, repo, "oldpass1", true)

		if err := svc.ChangePassword(ctx, user.ID, "oldpass1", "newpass1"); err != nil {
			t.Fatalf("change password: %v", err)
		}

		stored := repo.users[user.ID]
		if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("newpass1")); err != nil {
			t.Error("hash does not verify against new password")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("oldpass1")); err == nil {
			t.Error("hash must no longer verify against prior password")
		}

		if len(publisher.payloads) != 1 {
			t.Fatalf("expected one event, got %d", len(publisher.payloads))
		}
		var event events.AccountEvent
		if err := json.Unmarshal(publisher.payloads[0], &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if event.Type != events.TypePasswordChanged {
			t.Errorf("unexpected event type %q", event.Type)
		}
	})

	t.Run("stale replay fails", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := NewUserService(repo, nil)
		user := seed(t, repo, "oldpass1", true)

		if err := svc.ChangePassword(ctx, user.ID, "oldpass1", "newpass1"); err != nil {
			t.Fatalf("first change: %v", err)
		}
		err := svc.ChangePassword(ctx, user.ID, "oldpass1", "newpass1")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("replay must fail with ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("wrong old password", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := NewUserService(repo, nil)
		user := seed(t, repo, "oldpass1", true)
		before := repo.users[user.ID].PasswordHash

		err := svc.ChangePassword(ctx, user.ID, "wrongpass", "newpass1")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
		if repo.users[user.ID].PasswordHash != before {
			t.Error("record must not change on failure")
		}
	})

	t.Run("same password", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := NewUserService(repo, nil)
		user := seed(t, repo, "oldpass1", true)
		before := repo.users[user.ID].PasswordHash

		err := svc.ChangePassword(ctx, user.ID, "oldpass1", "oldpass1")
		if !errors.Is(err, ErrSamePassword) {
			t.Fatalf("expected ErrSamePassword, got %v", err)
		}
		if repo.users[user.ID].PasswordHash != before {
			t.Error("record must not change on failure")
		}
	})

	t.Run("inactive account", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := NewUserService(repo, nil)
		user := seed(t, repo, "oldpass1", false)
		before := repo.users[user.ID].PasswordHash

		err := svc.ChangePassword(ctx, user.ID, "oldpass1", "newpass1")
		if !errors.Is(err, ErrUserInactive) {
			t.Fatalf("expected ErrUserInactive, got %v", err)
		}
		if repo.users[user.ID].PasswordHash != before {
			t.Error("record must not change on failure")
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		svc := NewUserService(newFakeUserRepo(), nil)
		err := svc.ChangePassword(ctx, 42, "oldpass1", "newpass1")
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("short new password", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := NewUserService(repo, nil)
		user := seed(t, repo, "oldpass1", true)

		err := svc.ChangePassword(ctx, user.ID, "oldpass1", "short")
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) || validationErr.Field != "newPassword" {
			t.Fatalf("expected newPassword validation error, got %v", err)
		}
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	repo := newFakeUserRepo()
	svc := NewUserService(repo, nil)

	hashed, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user, err := repo.Create(ctx, types.User{
		Name:         "Carol",
		Email:        "carol@example.com",
		Role:         DefaultRole,
		Active:       true,
		PasswordHash: string(hashed),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := svc.Authenticate(ctx, "Carol@Example.com", "secret1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("unexpected user %d", got.ID)
	}

	if _, err := svc.Authenticate(ctx, "carol@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.com", "secret1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
