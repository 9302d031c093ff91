package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"

	"github.com/loanbridge/portal-api/internal/apperr"
	"github.com/loanbridge/portal-api/internal/authz"
	"github.com/loanbridge/portal-api/internal/identity"
	"github.com/loanbridge/portal-api/internal/referral"
	"github.com/loanbridge/portal-api/internal/repository"
)

type AuthHandler struct {
	userRepo  repository.UserRepository
	validator identity.InvitationValidator
	referrals *referral.Manager
	jwtSecret string
	logger    zerolog.Logger
}

type signupRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	InvitationToken string `json:"invitation_token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewAuthHandler(userRepo repository.UserRepository, validator identity.InvitationValidator, referrals *referral.Manager, jwtSecret string, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		userRepo:  userRepo,
		validator: validator,
		referrals: referrals,
		jwtSecret: jwtSecret,
		logger:    logger.With().Str("handler", "auth").Logger(),
	}
}

// SignUp creates a portal account. When an invitation token accompanies the
// request it is consumed to bind the new account to its CRM contact, and the
// contact's referral token is issued.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.InvitationToken = strings.TrimSpace(req.InvitationToken)

	// Pre-check the invitation so an unusable token fails before the account
	// exists. The actual consumption happens after the user is created.
	if req.InvitationToken != "" {
		if _, err := h.validator.Validate(r.Context(), req.InvitationToken, req.Email); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	user, err := h.userRepo.CreateUser(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			http.Error(w, "Email already registered", http.StatusConflict)
			return
		}
		writeError(w, h.logger, err)
		return
	}

	var contactID string
	if req.InvitationToken != "" {
		claim, err := h.validator.ValidateWithBinding(r.Context(), req.InvitationToken, user.ID, user.Email)
		if err != nil {
			// Account exists; identity can still be established later through
			// the resolver, so the sign-up itself succeeds.
			h.logger.Warn().Err(err).Str("user_id", user.ID).Msg("invitation binding failed during sign-up")
		} else {
			contactID = claim.ContactID
			if _, err := h.referrals.Generate(r.Context(), claim.ContactID, user.Email, 0); err != nil {
				h.logger.Error().Err(err).Str("contact_id", claim.ContactID).Msg("referral token issuance failed during sign-up")
			}
		}
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         user.ID,
		"email":      user.Email,
		"contact_id": contactID,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.userRepo.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if apperr.IsKind(err, apperr.KindUnauthorized) {
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}
		writeError(w, h.logger, err)
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to sign session token")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}

func (h *AuthHandler) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}
		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(h.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !claims.VerifyExpiresAt(time.Now().Unix(), true) {
			http.Error(w, "Token expired", http.StatusUnauthorized)
			return
		}
		userID, _ := claims["sub"].(string)
		if userID == "" {
			http.Error(w, "Missing subject claim", http.StatusUnauthorized)
			return
		}
		email, _ := claims["email"].(string)

		ctx := authz.WithIdentity(r.Context(), userID, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
