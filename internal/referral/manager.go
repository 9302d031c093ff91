package referral

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/loanbridge/portal-api/internal/apperr"
	"github.com/loanbridge/portal-api/internal/models"
)

const (
	// TokenPrefix namespaces referral tokens so they are recognizable in
	// logs and support tickets.
	TokenPrefix = "REF-"
	// DefaultMaxUses is effectively unlimited; a concrete cap is a product
	// decision configured per deployment.
	DefaultMaxUses = 999999
	// DefaultTokenTTL fixes expiry at creation time.
	DefaultTokenTTL = 90 * 24 * time.Hour
	// DefaultStoreTimeout bounds every token store call.
	DefaultStoreTimeout = 5 * time.Second
)

// TokenStore is the durable referral token collaborator. ConsumeUse must be
// an atomic check-and-increment; everything else is a plain read or insert.
type TokenStore interface {
	GetByContact(ctx context.Context, contactID string) (models.ReferralToken, error)
	GetByToken(ctx context.Context, token string) (models.ReferralToken, error)
	Create(ctx context.Context, token models.ReferralToken) (models.ReferralToken, error)
	ConsumeUse(ctx context.Context, token, newContactID, newUserEmail string) (models.ReferralReceipt, error)
	StatsByContact(ctx context.Context, contactID string) (models.ReferralStats, error)
}

// Manager owns the referral token lifecycle: idempotent issuance, opaque
// validation, bounded consumption, and usage statistics.
type Manager struct {
	store    TokenStore
	maxUses  int
	tokenTTL time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

type ManagerOption func(*Manager)

// WithMaxUses overrides the default usage cap for newly minted tokens.
func WithMaxUses(maxUses int) ManagerOption {
	return func(m *Manager) {
		if maxUses > 0 {
			m.maxUses = maxUses
		}
	}
}

// WithTokenTTL overrides the token lifetime fixed at creation.
func WithTokenTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.tokenTTL = ttl
		}
	}
}

// WithStoreTimeout overrides the per-call token store deadline.
func WithStoreTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

func NewManager(store TokenStore, logger zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		maxUses:  DefaultMaxUses,
		tokenTTL: DefaultTokenTTL,
		timeout:  DefaultStoreTimeout,
		logger:   logger.With().Str("component", "referral_manager").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Generate returns the contact's live token, minting one only when no
// active, unexpired, non-exhausted token exists. Issuance is idempotent:
// there is never more than one live token per contact.
func (m *Manager) Generate(ctx context.Context, contactID, userEmail string, maxUses int) (models.ReferralToken, error) {
	if contactID == "" {
		return models.ReferralToken{}, apperr.New(apperr.KindInternal, "contact id is required")
	}
	if maxUses <= 0 {
		maxUses = m.maxUses
	}

	existing, err := m.getByContact(ctx, contactID)
	switch {
	case err == nil:
		if existing.Usable(m.now()) {
			return existing, nil
		}
		// Expired or exhausted: mint a replacement.
	case !apperr.IsKind(err, apperr.KindNotFound):
		return models.ReferralToken{}, errors.Wrap(err, "check existing referral token")
	}

	now := m.now()
	minted := models.ReferralToken{
		Token:     TokenPrefix + uuid.NewString(),
		ContactID: contactID,
		UserEmail: userEmail,
		MaxUses:   maxUses,
		UsesCount: 0,
		IsActive:  true,
		ExpiresAt: now.Add(m.tokenTTL),
	}

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	created, err := m.store.Create(cctx, minted)
	if err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			// A concurrent Generate won the partial-unique race; return its
			// token to keep issuance idempotent.
			raced, rerr := m.getByContact(ctx, contactID)
			if rerr == nil && raced.Usable(m.now()) {
				return raced, nil
			}
		}
		return models.ReferralToken{}, errors.Wrap(err, "create referral token")
	}

	m.logger.Info().
		Str("contact_id", contactID).
		Str("token_id", created.ID).
		Int("max_uses", created.MaxUses).
		Time("expires_at", created.ExpiresAt).
		Msg("referral token issued")

	return created, nil
}

// Get returns the contact's most recent token, usable or not.
func (m *Manager) Get(ctx context.Context, contactID string) (models.ReferralToken, error) {
	return m.getByContact(ctx, contactID)
}

// Validate returns the token only if it is usable. The caller learns a
// single opaque invalidity; the specific reason is logged here to keep the
// endpoint useless for token probing.
func (m *Manager) Validate(ctx context.Context, token string) (models.ReferralToken, error) {
	found, err := m.getByToken(ctx, token)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			m.logger.Info().Str("reason", "not found").Msg("referral token rejected")
			return models.ReferralToken{}, apperr.New(apperr.KindInvalidToken, "referral token is not valid")
		}
		return models.ReferralToken{}, errors.Wrap(err, "validate referral token")
	}

	if reason := unusableReason(found, m.now()); reason != "" {
		m.logger.Info().
			Str("token_id", found.ID).
			Str("reason", reason).
			Msg("referral token rejected")
		return models.ReferralToken{}, apperr.New(apperr.KindInvalidToken, "referral token is not valid")
	}

	return found, nil
}

// Consume attributes a new lead to the token's owner. Validity re-check and
// increment happen as one atomic step in the store; the call is never
// retried because the increment is not idempotent.
func (m *Manager) Consume(ctx context.Context, token, newContactID, newUserEmail string) (models.ReferralReceipt, error) {
	if newContactID == "" {
		return models.ReferralReceipt{}, apperr.New(apperr.KindInternal, "new contact id is required")
	}

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	receipt, err := m.store.ConsumeUse(cctx, token, newContactID, newUserEmail)
	if err != nil {
		if apperr.IsKind(err, apperr.KindInvalidToken) || apperr.IsKind(err, apperr.KindConflict) {
			m.logger.Info().Str("reason", "unusable at atomic step").Msg("referral consumption rejected")
			return models.ReferralReceipt{}, apperr.New(apperr.KindInvalidToken, "referral token is not valid")
		}
		return models.ReferralReceipt{}, errors.Wrap(err, "consume referral token")
	}

	m.logger.Info().
		Str("referrer_contact_id", receipt.ReferrerContactID).
		Str("new_contact_id", newContactID).
		Int("uses_remaining", receipt.UsesRemaining).
		Msg("referral token consumed")

	return receipt, nil
}

// Stats aggregates usage for a contact. A contact with no token gets zeroed
// counts, never an error.
func (m *Manager) Stats(ctx context.Context, contactID string) (models.ReferralStats, error) {
	stats, err := m.statsByContact(ctx, contactID)
	if err != nil {
		return models.ReferralStats{}, errors.Wrap(err, "referral stats")
	}
	return stats, nil
}

func (m *Manager) getByContact(ctx context.Context, contactID string) (models.ReferralToken, error) {
	get := func() (models.ReferralToken, error) {
		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		return m.store.GetByContact(cctx, contactID)
	}

	token, err := get()
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		// Idempotent read, retried at most once.
		token, err = get()
	}
	return token, err
}

func (m *Manager) getByToken(ctx context.Context, token string) (models.ReferralToken, error) {
	get := func() (models.ReferralToken, error) {
		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		return m.store.GetByToken(cctx, token)
	}

	found, err := get()
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		found, err = get()
	}
	return found, err
}

func (m *Manager) statsByContact(ctx context.Context, contactID string) (models.ReferralStats, error) {
	get := func() (models.ReferralStats, error) {
		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		return m.store.StatsByContact(cctx, contactID)
	}

	stats, err := get()
	if err != nil {
		stats, err = get()
	}
	return stats, err
}

func unusableReason(t models.ReferralToken, now time.Time) string {
	switch {
	case t.IsExpired(now):
		return "expired"
	case t.IsExhausted():
		return "exhausted"
	case !t.IsActive:
		return "inactive"
	}
	return ""
}
