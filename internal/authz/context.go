package authz

import (
	"context"
	"net/http"
)

type contextKey string

const (
	authUserIDKey contextKey = "auth_user_id"
	userEmailKey  contextKey = "user_email"
)

// WithIdentity stores the authenticated portal user on the context.
func WithIdentity(ctx context.Context, authUserID, email string) context.Context {
	if authUserID != "" {
		ctx = context.WithValue(ctx, authUserIDKey, authUserID)
	}
	if email != "" {
		ctx = context.WithValue(ctx, userEmailKey, email)
	}
	return ctx
}

func AuthUserIDFromRequest(r *http.Request) (string, bool) {
	uid, ok := r.Context().Value(authUserIDKey).(string)
	if !ok || uid == "" {
		return "", false
	}
	return uid, true
}

func UserEmailFromRequest(r *http.Request) (string, bool) {
	email, ok := r.Context().Value(userEmailKey).(string)
	if !ok || email == "" {
		return "", false
	}
	return email, true
}
