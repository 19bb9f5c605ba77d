package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bugtrail/apiserver/types"
	"github.com/lib/pq"
)

var userColumns = []string{"id", "name", "email", "role", "active", "password_hash", "created_at", "updated_at"}

func userRow(id int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userColumns).
		AddRow(id, "Alice", "alice@example.com", "tester", true, "$2a$10$hash", now, now)
}

func TestUserRepositoryGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewUserRepository(db)

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs(1).
			WillReturnRows(userRow(1))

		user, err := repo.GetByID(context.Background(), 1)
		if err != nil {
			t.Fatalf("get by id: %v", err)
		}
		if user.ID != 1 || user.Email != "alice@example.com" {
			t.Errorf("unexpected user: %+v", user)
		}
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs(42).
			WillReturnRows(sqlmock.NewRows(userColumns))

		_, err := repo.GetByID(context.Background(), 42)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUserRepositoryGetByEmailNormalizes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewUserRepository(db)

	// The query must receive the lower-cased, trimmed email.
	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("alice@example.com").
		WillReturnRows(userRow(1))

	if _, err := repo.GetByEmail(context.Background(), "  Alice@Example.COM "); err != nil {
		t.Fatalf("get by email: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUserRepositoryCreate(t *testing.T) {
	newUser := types.User{
		Name:         "Alice",
		Email:        "alice@example.com",
		Role:         "tester",
		Active:       true,
		PasswordHash: "$2a$10$hash",
	}

	t.Run("success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock: %v", err)
		}
		defer db.Close()
		repo := NewUserRepository(db)

		mock.ExpectQuery("INSERT INTO users").
			WithArgs("Alice", "alice@example.com", "tester", true, "$2a$10$hash", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

		created, err := repo.Create(context.Background(), newUser)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.ID != 7 {
			t.Errorf("expected id 7, got %d", created.ID)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("duplicate email maps to ErrDuplicateEmail", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock: %v", err)
		}
		defer db.Close()
		repo := NewUserRepository(db)

		mock.ExpectQuery("INSERT INTO users").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

		_, err = repo.Create(context.Background(), newUser)
		if !errors.Is(err, ErrDuplicateEmail) {
			t.Fatalf("expected ErrDuplicateEmail, got %v", err)
		}
	})

	t.Run("other errors pass through", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock: %v", err)
		}
		defer db.Close()
		repo := NewUserRepository(db)

		mock.ExpectQuery("INSERT INTO users").
			WillReturnError(errors.New("connection reset"))

		_, err = repo.Create(context.Background(), newUser)
		if err == nil || errors.Is(err, ErrDuplicateEmail) {
			t.Fatalf("expected passthrough error, got %v", err)
		}
	})
}

func TestUserRepositoryUpdatePassword(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock: %v", err)
		}
		defer db.Close()
		repo := NewUserRepository(db)

		mock.ExpectExec("UPDATE users").
			WithArgs("$2a$10$newhash", sqlmock.AnyArg(), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.UpdatePassword(context.Background(), 1, "$2a$10$newhash"); err != nil {
			t.Fatalf("update password: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("missing row", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock: %v", err)
		}
		defer db.Close()
		repo := NewUserRepository(db)

		mock.ExpectExec("UPDATE users").
			WillReturnResult(sqlmock.NewResult(0, 0))

		if err := repo.UpdatePassword(context.Background(), 42, "$2a$10$newhash"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
