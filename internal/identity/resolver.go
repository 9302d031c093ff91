package identity

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/loanbridge/portal-api/internal/apperr"
	"github.com/loanbridge/portal-api/internal/cache"
	"github.com/loanbridge/portal-api/internal/models"
)

const (
	// DefaultCacheTTL is the resolver's policy for credential cache entries.
	// The cache itself is TTL-agnostic.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultCollaboratorTimeout bounds every call into a durable source so a
	// slow collaborator cannot stall the caller indefinitely.
	DefaultCollaboratorTimeout = 5 * time.Second

	// EmailPlaceholder stands in for a missing email on the credential
	// validation path. Validators skip the email check for it.
	EmailPlaceholder = "unknown@portal.invalid"
)

// InvitationClaim is the contact identity an invitation token vouches for.
type InvitationClaim struct {
	ContactID string
	Email     string
}

// MappingStore is the durable auth-identity to contact-identity lookup.
// An empty email requests the looser match on auth user id alone.
type MappingStore interface {
	Lookup(ctx context.Context, authUserID, email string) (models.UserMapping, error)
}

// InvitationValidator checks one-time invitation tokens against contact
// records. ValidateWithBinding additionally persists the auth-user mapping
// and consumes the invitation.
type InvitationValidator interface {
	Validate(ctx context.Context, token, email string) (InvitationClaim, error)
	ValidateWithBinding(ctx context.Context, token, authUserID, email string) (InvitationClaim, error)
}

// ResolveRequest carries whatever identity evidence the caller presented.
// All fields are optional; at least one of Credential, AuthUserID, or
// InvitationToken must be set.
type ResolveRequest struct {
	Credential      string
	AuthUserID      string
	Email           string
	InvitationToken string
}

func (r ResolveRequest) hasEvidence() bool {
	return r.Credential != "" || r.AuthUserID != "" || r.InvitationToken != ""
}

// Resolver maps inbound callers to durable contact identities through a
// prioritized lookup chain: credential cache, credential validation, mapping
// store, invitation token. Previously established identity wins over one-time
// invitation evidence so a returning user is never re-consumed against a
// stale invitation. The cache sits first purely for latency; it is populated
// only from validated durable lookups.
type Resolver struct {
	cache       *cache.Cache[string]
	mappings    MappingStore
	invitations InvitationValidator
	cacheTTL    time.Duration
	timeout     time.Duration
	logger      zerolog.Logger
}

type ResolverOption func(*Resolver)

// WithCacheTTL overrides the credential cache TTL.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

// WithCollaboratorTimeout overrides the per-call collaborator deadline.
func WithCollaboratorTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

func NewResolver(mappings MappingStore, invitations InvitationValidator, logger zerolog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cache:       cache.New[string](),
		mappings:    mappings,
		invitations: invitations,
		cacheTTL:    DefaultCacheTTL,
		timeout:     DefaultCollaboratorTimeout,
		logger:      logger.With().Str("component", "identity_resolver").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve walks the priority chain and returns the first contact identity a
// source produces. Collaborator failures are soft misses for every step but
// the last one attempted, where they surface as an upstream failure.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (models.Resolution, error) {
	if !req.hasEvidence() {
		return models.Resolution{}, apperr.New(apperr.KindUnauthorized, "no identity evidence supplied")
	}

	if req.Credential != "" {
		if contactID, ok := r.cache.Get(req.Credential); ok {
			return models.Resolution{ContactID: contactID, Source: models.SourceCache}, nil
		}

		email := req.Email
		if email == "" {
			email = EmailPlaceholder
		}
		claim, err := r.boundedValidate(ctx, req.Credential, email)
		switch {
		case err == nil:
			r.cache.Put(req.Credential, claim.ContactID, r.cacheTTL)
			return models.Resolution{ContactID: claim.ContactID, Source: models.SourceInvitation}, nil
		case isMiss(err):
			// no match, keep walking the chain
		case req.AuthUserID == "" && req.InvitationToken == "":
			return models.Resolution{}, apperr.Wrap(apperr.KindUpstream, errors.Wrap(err, "credential validation"), "identity source unavailable")
		default:
			r.logger.Warn().Err(err).Msg("credential validation failed, trying next source")
		}
	}

	if req.AuthUserID != "" {
		mapping, err := r.lookupMapping(ctx, req.AuthUserID, req.Email)
		switch {
		case err == nil:
			return models.Resolution{ContactID: mapping.ContactID, Source: models.SourceMapping}, nil
		case isMiss(err):
			// no mapping established yet
		case req.InvitationToken == "":
			return models.Resolution{}, apperr.Wrap(apperr.KindUpstream, errors.Wrap(err, "mapping store lookup"), "identity source unavailable")
		default:
			r.logger.Warn().Err(err).Msg("mapping store lookup failed, trying next source")
		}
	}

	if req.InvitationToken != "" {
		claim, err := r.boundedValidate(ctx, req.InvitationToken, req.Email)
		switch {
		case err == nil:
			return models.Resolution{ContactID: claim.ContactID, Source: models.SourceInvitation}, nil
		case isMiss(err):
			// fall through to not found
		default:
			return models.Resolution{}, apperr.Wrap(apperr.KindUpstream, errors.Wrap(err, "invitation validation"), "identity source unavailable")
		}
	}

	return models.Resolution{}, apperr.New(apperr.KindNotFound, "no contact identity matched the supplied evidence")
}

// CacheStats exposes credential cache occupancy for the admin surface.
func (r *Resolver) CacheStats() cache.Stats {
	return r.cache.Stats()
}

// ClearCache drops all cached credential resolutions. Administrative use
// only; the request path never calls this.
func (r *Resolver) ClearCache() {
	r.cache.Clear()
}

// lookupMapping queries the mapping store, retrying the email-qualified miss
// with the looser auth-user-id-only match before giving up.
func (r *Resolver) lookupMapping(ctx context.Context, authUserID, email string) (models.UserMapping, error) {
	mapping, err := r.boundedLookup(ctx, authUserID, email)
	if isMiss(err) && email != "" {
		mapping, err = r.boundedLookup(ctx, authUserID, "")
	}
	return mapping, err
}

func (r *Resolver) boundedLookup(ctx context.Context, authUserID, email string) (models.UserMapping, error) {
	lookup := func() (models.UserMapping, error) {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.mappings.Lookup(cctx, authUserID, email)
	}

	mapping, err := lookup()
	if err != nil && !isMiss(err) {
		// Idempotent read, retried at most once.
		mapping, err = lookup()
	}
	return mapping, err
}

func (r *Resolver) boundedValidate(ctx context.Context, token, email string) (InvitationClaim, error) {
	validate := func() (InvitationClaim, error) {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.invitations.Validate(cctx, token, email)
	}

	claim, err := validate()
	if err != nil && !isMiss(err) {
		claim, err = validate()
	}
	return claim, err
}

// isMiss reports whether err is a clean "no match" as opposed to a
// collaborator failure.
func isMiss(err error) bool {
	return apperr.IsKind(err, apperr.KindNotFound) || apperr.IsKind(err, apperr.KindInvalidToken)
}
