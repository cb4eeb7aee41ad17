package http

import (
	"crypto/subtle"
	"net/http"
)

// HeaderAPIKey carries the shared secret on every agent route.
const HeaderAPIKey = "x-agent-api-key"

// requireAPIKey rejects requests whose key does not match. The comparison
// takes the same time for every key of a given length.
func requireAPIKey(apiKey string) func(http.Handler) http.Handler {
	want := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(HeaderAPIKey))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				UnauthorizedError().Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
