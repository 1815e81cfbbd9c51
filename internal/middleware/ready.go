package middleware

import (
	"encoding/json"
	"net/http"
)

// MsgNotInitialized is returned while the store is not connected yet.
const MsgNotInitialized = "Database not initialized. Please try again later."

// RequireReady answers 503 until ready reports true. Routes behind it never
// run against a store that has not connected.
func RequireReady(ready func() bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ready() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"message": MsgNotInitialized,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
