package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/bugtrail/apiserver/types"
	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT id, name, email, role, active, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1`
	var user types.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.Active,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// GetByEmail looks a user up by email. The lookup is case-insensitive:
// stored emails are lower-cased, so the argument is normalized the same way.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT id, name, email, role, active, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1`
	var user types.User
	err := r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.Active,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// Create inserts a new user. A unique-constraint violation on the email
// column is mapped to ErrDuplicateEmail.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (name, email, role, active, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.Role,
		user.Active,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdatePassword overwrites the stored password hash. It is the only
// mutation path for existing records in this service.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
