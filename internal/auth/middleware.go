package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-ordering/internal/logger"
	"ms-ordering/internal/utils"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Middleware rejects requests without a valid bearer token and stores the
// token's subject as the user id.
func Middleware(verifier Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}

			id, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("AUTH_FAILED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id.Subject)))
		})
	}
}

func unauthorized(w http.ResponseWriter, reason string) {
	_ = utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", reason))
}

// WithUserID returns ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID extracts the authenticated user id in handlers.
func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey).(string); ok {
		return uid
	}
	return ""
}
