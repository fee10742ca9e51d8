package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/isdelr/chirper-be/internal/api/respond"
	"github.com/isdelr/chirper-be/internal/apperror"
	"github.com/isdelr/chirper-be/internal/models"
	"github.com/isdelr/chirper-be/internal/store"
	"github.com/rs/zerolog/log"
)

// CookieName is the cookie checked when no Authorization header is sent.
const CookieName = "token"

type contextKey string

const userContextKey = contextKey("actingUser")

// UserLookup resolves a token subject to a user.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (models.User, error)
}

// WithUser binds the acting user to ctx.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the acting user bound by the middleware.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// JWTMiddleware creates a middleware for protecting routes. It reads the
// bearer token, verifies it and binds the resolved user to the request context.
func JWTMiddleware(tokens *TokenManager, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := extractToken(r)
			if tokenStr == "" {
				respond.Error(w, r, apperror.NewUnauthenticated("Unauthorized: no token provided"))
				return
			}

			userID, err := tokens.Parse(tokenStr)
			if err != nil {
				respond.Error(w, r, apperror.NewInvalidCredential("Invalid token", err))
				return
			}

			user, err := users.GetUserByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					respond.Error(w, r, apperror.NewUnauthenticated("Unauthorized: user not found"))
					return
				}
				respond.Error(w, r, apperror.NewInternal("Failed to resolve user", err))
				return
			}

			log.Debug().Str("user_id", user.ID).Str("username", user.Username).Msg("Authenticated request")
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// extractToken prefers the Authorization header and falls back to the cookie.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}
