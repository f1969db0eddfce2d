package httpserver

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"rtchat/internal/domain"
	"rtchat/internal/security"
)

type contextKey string

const userContextKey contextKey = "currentUser"

// WithUser returns a new context carrying the current user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// CurrentUser extracts the current user from context, if any.
func CurrentUser(r *http.Request) *domain.User {
	if v := r.Context().Value(userContextKey); v != nil {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

// AuthMiddleware validates the Bearer token and attaches the user to the
// context. Suspended accounts are rejected with 403.
func AuthMiddleware(tokens *security.TokenService, users domain.UserRepository, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				writeError(w, domain.ErrNoCredential)
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			userID, err := tokens.Verify(tokenStr)
			if err != nil {
				writeError(w, err)
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				logger.Error("auth middleware lookup failed", zap.String("user_id", userID), zap.Error(err))
				writeError(w, domain.ErrInvalidCredential)
				return
			}
			if user == nil {
				writeError(w, domain.ErrInvalidCredential)
				return
			}
			if user.Suspended {
				writeError(w, domain.ErrAccountSuspended)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
