package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/loanbridge/portal-api/internal/apperr"
	"github.com/loanbridge/portal-api/internal/models"
	"github.com/loanbridge/portal-api/internal/repository"
)

// Validator checks invitation tokens against the durable invitation records
// the CRM sync provisions. It satisfies InvitationValidator.
type Validator struct {
	invitations repository.InvitationRepository
	mappings    repository.UserMappingRepository
	logger      zerolog.Logger
	now         func() time.Time
}

func NewValidator(invitations repository.InvitationRepository, mappings repository.UserMappingRepository, logger zerolog.Logger) *Validator {
	return &Validator{
		invitations: invitations,
		mappings:    mappings,
		logger:      logger.With().Str("component", "invitation_validator").Logger(),
		now:         time.Now,
	}
}

// Validate is the read-only check. It never consumes the invitation, so the
// resolver can re-validate a bearer credential without burning it.
func (v *Validator) Validate(ctx context.Context, token, email string) (InvitationClaim, error) {
	invitation, err := v.lookupUsable(ctx, token, email)
	if err != nil {
		return InvitationClaim{}, err
	}
	return InvitationClaim{ContactID: invitation.ContactID, Email: invitation.Email}, nil
}

// ValidateWithBinding is the first-time-setup path: it consumes the
// invitation and persists the authUserID to contact mapping. Acceptance is
// claimed before the mapping write so a raced second caller loses cleanly.
func (v *Validator) ValidateWithBinding(ctx context.Context, token, authUserID, email string) (InvitationClaim, error) {
	invitation, err := v.lookupUsable(ctx, token, email)
	if err != nil {
		return InvitationClaim{}, err
	}

	if _, err := v.invitations.MarkAccepted(ctx, invitation.ID); err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			v.logger.Info().Str("invitation_id", invitation.ID).Msg("invitation lost acceptance race")
			return InvitationClaim{}, apperr.New(apperr.KindInvalidToken, "invitation token is not valid")
		}
		return InvitationClaim{}, err
	}

	bindEmail := email
	if bindEmail == "" || bindEmail == EmailPlaceholder {
		bindEmail = invitation.Email
	}
	mapping, err := v.mappings.Upsert(ctx, models.UserMapping{
		AuthUserID: authUserID,
		Email:      bindEmail,
		ContactID:  invitation.ContactID,
	})
	if err != nil {
		// The invitation is already consumed at this point. Surface the
		// failure; the contact can be re-invited from the CRM side.
		v.logger.Error().Err(err).Str("invitation_id", invitation.ID).Msg("mapping bind failed after acceptance")
		return InvitationClaim{}, err
	}

	v.logger.Info().
		Str("invitation_id", invitation.ID).
		Str("auth_user_id", authUserID).
		Str("contact_id", invitation.ContactID).
		Msg("invitation accepted and identity bound")

	return InvitationClaim{ContactID: mapping.ContactID, Email: mapping.Email}, nil
}

func (v *Validator) lookupUsable(ctx context.Context, token, email string) (models.Invitation, error) {
	invitation, err := v.invitations.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return models.Invitation{}, apperr.New(apperr.KindInvalidToken, "invitation token is not valid")
		}
		return models.Invitation{}, err
	}

	if reason := v.unusableReason(invitation, email); reason != "" {
		// Sub-reason stays in the logs; callers get one opaque kind.
		v.logger.Info().
			Str("invitation_id", invitation.ID).
			Str("reason", reason).
			Msg("invitation rejected")
		return models.Invitation{}, apperr.New(apperr.KindInvalidToken, "invitation token is not valid")
	}

	return invitation, nil
}

func (v *Validator) unusableReason(invitation models.Invitation, email string) string {
	switch {
	case invitation.IsUsed():
		return "already accepted"
	case invitation.IsExpired(v.now()):
		return "expired"
	case email != "" && email != EmailPlaceholder && !strings.EqualFold(email, invitation.Email):
		return "email mismatch"
	}
	return ""
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
