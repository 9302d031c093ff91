package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/loanbridge/portal-api/internal/handlers"
)

// NewRouter sets up the API routes
func NewRouter(auth *handlers.AuthHandler, identity *handlers.IdentityHandler, referral *handlers.ReferralHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	// Identity resolution accepts unauthenticated evidence (credentials and
	// invitation tokens); authenticated sessions enrich the request instead.
	router.HandleFunc("/api/identity/resolve", identity.Resolve).Methods(http.MethodPost)

	// Lead-capture endpoints are public by design: the new lead has no
	// account yet when they redeem a referral token.
	router.HandleFunc("/api/referrals/validate/{token}", referral.Validate).Methods(http.MethodGet)
	router.HandleFunc("/api/referrals/use/{token}", referral.Use).Methods(http.MethodPost)

	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(auth.JWTMiddleware)
	protected.HandleFunc("/referrals", referral.Generate).Methods(http.MethodPost)
	protected.HandleFunc("/referrals", referral.GetCurrent).Methods(http.MethodGet)
	protected.HandleFunc("/referrals/stats", referral.Stats).Methods(http.MethodGet)
	protected.HandleFunc("/identity/cache/stats", identity.CacheStats).Methods(http.MethodGet)
	protected.HandleFunc("/identity/cache/clear", identity.CacheClear).Methods(http.MethodPost)

	return router
}
