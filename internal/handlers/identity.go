package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/loanbridge/portal-api/internal/authz"
	"github.com/loanbridge/portal-api/internal/identity"
)

type IdentityHandler struct {
	resolver *identity.Resolver
	logger   zerolog.Logger
}

type resolveRequest struct {
	Credential      string `json:"credential"`
	AuthUserID      string `json:"auth_user_id"`
	Email           string `json:"email"`
	InvitationToken string `json:"invitation_token"`
}

func NewIdentityHandler(resolver *identity.Resolver, logger zerolog.Logger) *IdentityHandler {
	return &IdentityHandler{
		resolver: resolver,
		logger:   logger.With().Str("handler", "identity").Logger(),
	}
}

// Resolve maps the caller's evidence to a contact identity. Authenticated
// callers get their auth user id and email from the session, overriding
// whatever the body claims.
func (h *IdentityHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	if uid, ok := authz.AuthUserIDFromRequest(r); ok {
		req.AuthUserID = uid
	}
	if email, ok := authz.UserEmailFromRequest(r); ok {
		req.Email = email
	}

	resolution, err := h.resolver.Resolve(r.Context(), identity.ResolveRequest{
		Credential:      strings.TrimSpace(req.Credential),
		AuthUserID:      strings.TrimSpace(req.AuthUserID),
		Email:           strings.TrimSpace(req.Email),
		InvitationToken: strings.TrimSpace(req.InvitationToken),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Debug().
		Str("contact_id", resolution.ContactID).
		Str("source", string(resolution.Source)).
		Msg("identity resolved")

	writeJSON(w, http.StatusOK, resolution)
}

// CacheStats reports credential cache occupancy. Administrative surface.
func (h *IdentityHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.resolver.CacheStats())
}

// CacheClear drops all cached credential resolutions. Administrative surface.
func (h *IdentityHandler) CacheClear(w http.ResponseWriter, r *http.Request) {
	h.resolver.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}
