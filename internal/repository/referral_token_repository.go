package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/loanbridge/portal-api/internal/apperr"
	"github.com/loanbridge/portal-api/internal/models"
)

const uniqueViolation = "23505"

type ReferralTokenRepository interface {
	GetByContact(ctx context.Context, contactID string) (models.ReferralToken, error)
	GetByToken(ctx context.Context, token string) (models.ReferralToken, error)
	Create(ctx context.Context, token models.ReferralToken) (models.ReferralToken, error)
	// ConsumeUse re-checks usability and increments the use count as one
	// guarded statement, then records the attributed lead in the same
	// transaction. Concurrent consumers of the last remaining use race on the
	// row lock; exactly one wins.
	ConsumeUse(ctx context.Context, token, newContactID, newUserEmail string) (models.ReferralReceipt, error)
	StatsByContact(ctx context.Context, contactID string) (models.ReferralStats, error)
}

type referralTokenRepository struct {
	db *sql.DB
}

func NewReferralTokenRepository(db *sql.DB) ReferralTokenRepository {
	return &referralTokenRepository{db: db}
}

const tokenColumns = `id, token, contact_id, user_email, max_uses, uses_count, is_active, expires_at, created_at, updated_at`

func (r *referralTokenRepository) scanToken(row *sql.Row) (models.ReferralToken, error) {
	var t models.ReferralToken
	err := row.Scan(
		&t.ID,
		&t.Token,
		&t.ContactID,
		&t.UserEmail,
		&t.MaxUses,
		&t.UsesCount,
		&t.IsActive,
		&t.ExpiresAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

func (r *referralTokenRepository) GetByContact(ctx context.Context, contactID string) (models.ReferralToken, error) {
	const query = `
		SELECT ` + tokenColumns + `
		FROM portal.referral_tokens
		WHERE contact_id = $1
		ORDER BY created_at DESC
		LIMIT 1;
	`

	token, err := r.scanToken(r.db.QueryRowContext(ctx, query, contactID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ReferralToken{}, apperr.New(apperr.KindNotFound, "no referral token for contact")
		}
		return models.ReferralToken{}, apperr.Wrap(apperr.KindUpstream, err, "get referral token by contact")
	}

	return token, nil
}

func (r *referralTokenRepository) GetByToken(ctx context.Context, token string) (models.ReferralToken, error) {
	const query = `
		SELECT ` + tokenColumns + `
		FROM portal.referral_tokens
		WHERE token = $1;
	`

	result, err := r.scanToken(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ReferralToken{}, apperr.New(apperr.KindNotFound, "referral token not found")
		}
		return models.ReferralToken{}, apperr.Wrap(apperr.KindUpstream, err, "get referral token")
	}

	return result, nil
}

func (r *referralTokenRepository) Create(ctx context.Context, token models.ReferralToken) (models.ReferralToken, error) {
	// A partial unique index allows one live token per contact. Retire any
	// stale live token (expired or exhausted) in the same transaction so the
	// replacement insert does not collide with it.
	const retireQuery = `
		UPDATE portal.referral_tokens
		SET is_active = FALSE, updated_at = now()
		WHERE contact_id = $1
		  AND is_active
		  AND (expires_at <= now() OR uses_count >= max_uses);
	`
	const insertQuery = `
		INSERT INTO portal.referral_tokens (token, contact_id, user_email, max_uses, uses_count, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + tokenColumns + `;
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.ReferralToken{}, apperr.Wrap(apperr.KindUpstream, err, "begin create transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, retireQuery, token.ContactID); err != nil {
		return models.ReferralToken{}, apperr.Wrap(apperr.KindUpstream, err, "retire stale referral token")
	}

	var created models.ReferralToken
	err = tx.QueryRowContext(ctx, insertQuery,
		token.Token,
		token.ContactID,
		token.UserEmail,
		token.MaxUses,
		token.UsesCount,
		token.IsActive,
		token.ExpiresAt,
	).Scan(
		&created.ID,
		&created.Token,
		&created.ContactID,
		&created.UserEmail,
		&created.MaxUses,
		&created.UsesCount,
		&created.IsActive,
		&created.ExpiresAt,
		&created.CreatedAt,
		&created.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.ReferralToken{}, apperr.Wrap(apperr.KindConflict, err, "referral token already exists")
		}
		return models.ReferralToken{}, apperr.Wrap(apperr.KindUpstream, err, "create referral token")
	}

	if err := tx.Commit(); err != nil {
		return models.ReferralToken{}, apperr.Wrap(apperr.KindUpstream, err, "commit create transaction")
	}

	return created, nil
}

func (r *referralTokenRepository) ConsumeUse(ctx context.Context, token, newContactID, newUserEmail string) (models.ReferralReceipt, error) {
	// The usability predicate lives in the UPDATE itself so the check and the
	// increment are one statement under the row lock. Reading first and
	// incrementing after would let two consumers jointly exceed max_uses.
	const consumeQuery = `
		UPDATE portal.referral_tokens
		SET uses_count = uses_count + 1,
		    is_active = (uses_count + 1 < max_uses),
		    updated_at = now()
		WHERE token = $1
		  AND is_active
		  AND expires_at > now()
		  AND uses_count < max_uses
		RETURNING id, contact_id, max_uses - uses_count;
	`
	const recordQuery = `
		INSERT INTO portal.referral_uses (token_id, referred_contact_id, referred_email)
		VALUES ($1, $2, $3);
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.ReferralReceipt{}, apperr.Wrap(apperr.KindUpstream, err, "begin consume transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var (
		tokenID string
		receipt models.ReferralReceipt
	)
	err = tx.QueryRowContext(ctx, consumeQuery, token).Scan(
		&tokenID,
		&receipt.ReferrerContactID,
		&receipt.UsesRemaining,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ReferralReceipt{}, apperr.New(apperr.KindInvalidToken, "referral token is not usable")
		}
		return models.ReferralReceipt{}, apperr.Wrap(apperr.KindUpstream, err, "consume referral token")
	}

	if _, err := tx.ExecContext(ctx, recordQuery, tokenID, newContactID, newUserEmail); err != nil {
		return models.ReferralReceipt{}, apperr.Wrap(apperr.KindUpstream, err, "record referral use")
	}

	if err := tx.Commit(); err != nil {
		return models.ReferralReceipt{}, apperr.Wrap(apperr.KindUpstream, err, "commit consume transaction")
	}

	return receipt, nil
}

func (r *referralTokenRepository) StatsByContact(ctx context.Context, contactID string) (models.ReferralStats, error) {
	const tokenQuery = `
		SELECT max_uses, uses_count, is_active, expires_at
		FROM portal.referral_tokens
		WHERE contact_id = $1
		ORDER BY created_at DESC
		LIMIT 1;
	`
	const totalQuery = `
		SELECT count(*)
		FROM portal.referral_uses u
		JOIN portal.referral_tokens t ON t.id = u.token_id
		WHERE t.contact_id = $1;
	`

	stats := models.ReferralStats{ContactID: contactID}

	var (
		isActive  bool
		expiresAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, tokenQuery, contactID).Scan(
		&stats.MaxUses,
		&stats.UsesCount,
		&isActive,
		&expiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Unknown contact: zeroed stats, not an error.
			return stats, nil
		}
		return models.ReferralStats{}, apperr.Wrap(apperr.KindUpstream, err, "get referral stats")
	}
	stats.HasActiveToken = isActive
	if expiresAt.Valid {
		stats.ExpiresAt = &expiresAt.Time
	}

	if err := r.db.QueryRowContext(ctx, totalQuery, contactID).Scan(&stats.TotalReferrals); err != nil {
		return models.ReferralStats{}, apperr.Wrap(apperr.KindUpstream, err, "count referral uses")
	}

	return stats, nil
}
