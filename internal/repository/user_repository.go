package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/loanbridge/portal-api/internal/apperr"
	"github.com/loanbridge/portal-api/internal/models"
	"golang.org/x/crypto/bcrypt"
)

type UserRepository interface {
	CreateUser(ctx context.Context, email, password, firstName, lastName string) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	GetUserByID(ctx context.Context, userID string) (models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (u *userRepository) CreateUser(ctx context.Context, email, password, firstName, lastName string) (models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return models.User{}, apperr.New(apperr.KindInternal, "email is required")
	}
	if strings.TrimSpace(password) == "" {
		return models.User{}, apperr.New(apperr.KindInternal, "password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, apperr.Wrap(apperr.KindInternal, err, "hash password")
	}

	user := models.User{
		Email:        email,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		PasswordHash: string(hash),
		IsActive:     true,
	}

	const query = `
		INSERT INTO portal.users (email, first_name, last_name, password_hash, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at;
	`
	err = u.db.QueryRowContext(ctx, query,
		user.Email,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.User{}, apperr.Wrap(apperr.KindConflict, err, "email already registered")
		}
		return models.User{}, apperr.Wrap(apperr.KindUpstream, err, "create user")
	}

	return user, nil
}

func (u *userRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	const query = `
		SELECT id, email, first_name, last_name, password_hash, is_active, created_at, updated_at
		FROM portal.users
		WHERE lower(email) = lower($1) AND deleted_at IS NULL;
	`

	var user models.User
	err := u.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, apperr.New(apperr.KindUnauthorized, "invalid credentials")
		}
		return models.User{}, apperr.Wrap(apperr.KindUpstream, err, "lookup user for authentication")
	}

	if !user.IsActive {
		return models.User{}, apperr.New(apperr.KindUnauthorized, "user is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, apperr.New(apperr.KindUnauthorized, "invalid credentials")
	}

	return user, nil
}

func (u *userRepository) GetUserByID(ctx context.Context, userID string) (models.User, error) {
	const query = `
		SELECT id, email, first_name, last_name, password_hash, is_active, created_at, updated_at
		FROM portal.users
		WHERE id = $1 AND deleted_at IS NULL;
	`

	var user models.User
	err := u.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, apperr.New(apperr.KindNotFound, "user not found")
		}
		return models.User{}, apperr.Wrap(apperr.KindUpstream, err, "get user by id")
	}

	return user, nil
}
