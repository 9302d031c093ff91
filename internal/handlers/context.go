package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/loanbridge/portal-api/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeError maps an error kind to a response. Expected failures get terse,
// uniform messages; causes stay in the logs.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindUnauthorized:
		http.Error(w, "Authentication required", http.StatusUnauthorized)
	case apperr.KindNotFound:
		http.Error(w, "Not found", http.StatusNotFound)
	case apperr.KindInvalidToken, apperr.KindConflict:
		// One opaque message for every invalidity sub-reason, so the endpoint
		// cannot be used to probe token state.
		http.Error(w, "Token is not valid", http.StatusBadRequest)
	case apperr.KindUpstream:
		logger.Error().Err(err).Msg("upstream collaborator failure")
		http.Error(w, "Service temporarily unavailable", http.StatusBadGateway)
	default:
		logger.Error().Err(err).Msg("unhandled internal error")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
