package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/loanbridge/portal-api/internal/apperr"
	"github.com/loanbridge/portal-api/internal/referral"
)

type ReferralHandler struct {
	manager *referral.Manager
	logger  zerolog.Logger
}

type generateRequest struct {
	ContactID string `json:"contact_id"`
	UserEmail string `json:"user_email"`
	MaxUses   int    `json:"max_uses"`
}

type useRequest struct {
	NewContactID string `json:"new_contact_id"`
	NewUserEmail string `json:"new_user_email"`
}

func NewReferralHandler(manager *referral.Manager, logger zerolog.Logger) *ReferralHandler {
	return &ReferralHandler{
		manager: manager,
		logger:  logger.With().Str("handler", "referral").Logger(),
	}
}

func (h *ReferralHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ContactID) == "" {
		http.Error(w, "contact_id is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.UserEmail) == "" {
		http.Error(w, "user_email is required", http.StatusBadRequest)
		return
	}

	token, err := h.manager.Generate(r.Context(), req.ContactID, req.UserEmail, req.MaxUses)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, token)
}

func (h *ReferralHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	contactID := strings.TrimSpace(r.URL.Query().Get("contact_id"))
	if contactID == "" {
		http.Error(w, "contact_id is required", http.StatusBadRequest)
		return
	}

	token, err := h.manager.Get(r.Context(), contactID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

// Validate reports a bare usable/not-usable verdict. Invalidity is opaque by
// design; the manager logs the sub-reason.
func (h *ReferralHandler) Validate(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(mux.Vars(r)["token"])
	if token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	referrer, err := h.manager.Validate(r.Context(), token)
	if err != nil {
		if apperr.IsKind(err, apperr.KindInvalidToken) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"valid": false})
			return
		}
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":    true,
		"referrer": referrer,
	})
}

func (h *ReferralHandler) Use(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(mux.Vars(r)["token"])
	if token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	var req useRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.NewContactID) == "" {
		http.Error(w, "new_contact_id is required", http.StatusBadRequest)
		return
	}

	receipt, err := h.manager.Consume(r.Context(), token, req.NewContactID, req.NewUserEmail)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

func (h *ReferralHandler) Stats(w http.ResponseWriter, r *http.Request) {
	contactID := strings.TrimSpace(r.URL.Query().Get("contact_id"))
	if contactID == "" {
		http.Error(w, "contact_id is required", http.StatusBadRequest)
		return
	}

	stats, err := h.manager.Stats(r.Context(), contactID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
