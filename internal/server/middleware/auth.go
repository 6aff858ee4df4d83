package middleware

import (
	"crypto/subtle"
	"net/http"

	apperrors "github.com/bakerstreetlabs/holmes-agent/internal/errors"
)

// AuthHeader carries the shared API token.
const AuthHeader = "X-Holmes-Token"

// TokenAuth rejects requests whose token header does not match the
// configured token. An empty configured token disables authentication.
func TokenAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			supplied := r.Header.Get(AuthHeader)
			if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
				apperrors.WriteError(w, http.StatusUnauthorized,
					apperrors.CodeUnauthorized, "missing or invalid API token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
