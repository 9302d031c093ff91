package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/loanbridge/portal-api/internal/apperr"
	"github.com/loanbridge/portal-api/internal/models"
)

type UserMappingRepository interface {
	// Lookup finds the mapping for an auth user. A non-empty email narrows
	// the match; an empty email matches on auth user id alone.
	Lookup(ctx context.Context, authUserID, email string) (models.UserMapping, error)
	// Upsert creates or rebinds the single mapping for an auth user.
	Upsert(ctx context.Context, mapping models.UserMapping) (models.UserMapping, error)
}

type userMappingRepository struct {
	db *sql.DB
}

func NewUserMappingRepository(db *sql.DB) UserMappingRepository {
	return &userMappingRepository{db: db}
}

func (r *userMappingRepository) Lookup(ctx context.Context, authUserID, email string) (models.UserMapping, error) {
	const strictQuery = `
		SELECT id, auth_user_id, email, contact_id, created_at, updated_at
		FROM portal.user_mappings
		WHERE auth_user_id = $1 AND lower(email) = lower($2);
	`
	const looseQuery = `
		SELECT id, auth_user_id, email, contact_id, created_at, updated_at
		FROM portal.user_mappings
		WHERE auth_user_id = $1;
	`

	var row *sql.Row
	if email != "" {
		row = r.db.QueryRowContext(ctx, strictQuery, authUserID, email)
	} else {
		row = r.db.QueryRowContext(ctx, looseQuery, authUserID)
	}

	var (
		mapping models.UserMapping
		mEmail  sql.NullString
	)
	err := row.Scan(
		&mapping.ID,
		&mapping.AuthUserID,
		&mEmail,
		&mapping.ContactID,
		&mapping.CreatedAt,
		&mapping.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserMapping{}, apperr.New(apperr.KindNotFound, "user mapping not found")
		}
		return models.UserMapping{}, apperr.Wrap(apperr.KindUpstream, err, "lookup user mapping")
	}
	mapping.Email = mEmail.String

	return mapping, nil
}

func (r *userMappingRepository) Upsert(ctx context.Context, mapping models.UserMapping) (models.UserMapping, error) {
	const query = `
		INSERT INTO portal.user_mappings (auth_user_id, email, contact_id)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (auth_user_id) DO UPDATE
			SET email = EXCLUDED.email, contact_id = EXCLUDED.contact_id, updated_at = now()
		RETURNING id, auth_user_id, email, contact_id, created_at, updated_at;
	`

	var mEmail sql.NullString
	err := r.db.QueryRowContext(ctx, query,
		mapping.AuthUserID,
		mapping.Email,
		mapping.ContactID,
	).Scan(
		&mapping.ID,
		&mapping.AuthUserID,
		&mEmail,
		&mapping.ContactID,
		&mapping.CreatedAt,
		&mapping.UpdatedAt,
	)
	if err != nil {
		return models.UserMapping{}, apperr.Wrap(apperr.KindUpstream, err, "upsert user mapping")
	}
	mapping.Email = mEmail.String

	return mapping, nil
}
