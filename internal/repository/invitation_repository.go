package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/loanbridge/portal-api/internal/apperr"
	"github.com/loanbridge/portal-api/internal/models"
)

type InvitationRepository interface {
	GetByTokenHash(ctx context.Context, tokenHash string) (models.Invitation, error)
	// MarkAccepted consumes the invitation. Only a pending invitation can be
	// accepted; a second call reports a conflict.
	MarkAccepted(ctx context.Context, invitationID string) (models.Invitation, error)
}

type invitationRepository struct {
	db *sql.DB
}

func NewInvitationRepository(db *sql.DB) InvitationRepository {
	return &invitationRepository{db: db}
}

func (r *invitationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (models.Invitation, error) {
	const query = `
		SELECT id, contact_id, email, token_hash, expires_at, accepted_at, created_at, updated_at
		FROM portal.invitations
		WHERE token_hash = $1;
	`

	var invitation models.Invitation
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&invitation.ID,
		&invitation.ContactID,
		&invitation.Email,
		&invitation.TokenHash,
		&invitation.ExpiresAt,
		&invitation.AcceptedAt,
		&invitation.CreatedAt,
		&invitation.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Invitation{}, apperr.New(apperr.KindNotFound, "invitation not found")
		}
		return models.Invitation{}, apperr.Wrap(apperr.KindUpstream, err, "get invitation by token hash")
	}

	return invitation, nil
}

func (r *invitationRepository) MarkAccepted(ctx context.Context, invitationID string) (models.Invitation, error) {
	const query = `
		UPDATE portal.invitations
		SET accepted_at = now(), updated_at = now()
		WHERE id = $1 AND accepted_at IS NULL
		RETURNING id, contact_id, email, token_hash, expires_at, accepted_at, created_at, updated_at;
	`

	var invitation models.Invitation
	err := r.db.QueryRowContext(ctx, query, invitationID).Scan(
		&invitation.ID,
		&invitation.ContactID,
		&invitation.Email,
		&invitation.TokenHash,
		&invitation.ExpiresAt,
		&invitation.AcceptedAt,
		&invitation.CreatedAt,
		&invitation.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Invitation{}, apperr.New(apperr.KindConflict, "invitation no longer pending")
		}
		return models.Invitation{}, apperr.Wrap(apperr.KindUpstream, err, "mark invitation accepted")
	}

	return invitation, nil
}
