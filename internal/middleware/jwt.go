package middleware

import (
	"context"
	"net/http"
	"strings"

	"relo/internal/apperr"
	"relo/internal/httpx"
)

type contextKey string

const UserKey contextKey = "user_id"

// TokenValidator is the slice of auth.TokenService the middleware needs.
type TokenValidator interface {
	ValidateAccess(token string) (string, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		if scheme, token, ok := strings.Cut(authHeader, " "); ok && strings.EqualFold(scheme, "Bearer") {
			tokenString = strings.TrimSpace(token)
		}

		// Browsers cannot set headers on some requests (downloads, EventSource).
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			httpx.Error(w, r, apperr.Unauthorized("missing authentication token", nil))
			return
		}

		userID, err := am.validator.ValidateAccess(tokenString)
		if err != nil {
			httpx.Error(w, r, apperr.Unauthorized("invalid token", err))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserKey, userID)
}

// UserID returns the authenticated user id set by Handle.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserKey).(string)
	return id, ok && id != ""
}
