package middleware

import (
	"net/http"

	"storefront-cart/internal/logger"
)

// UserFunc reports the user of the current storefront session.
type UserFunc func() (userID string, ok bool)

// SessionUser tags the request context with the logged in user, so logs and the
// rate limiter can key on it.
func SessionUser(current UserFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, ok := current(); ok {
				r = r.WithContext(logger.WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}
