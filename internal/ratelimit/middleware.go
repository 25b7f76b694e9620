package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
)

// RetryAfterSeconds is sent with every 429.
const RetryAfterSeconds = 1

// ClientIP keys requests by remote address without the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429 and the JSON
// {success:false, error} envelope. Requests with an empty key pass.
func Middleware(l *Limiter, keyOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyOf(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			lim := l.get(key)
			if !lim.Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   "Demasiadas solicitudes, intente de nuevo en un momento",
				})
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(int(lim.Tokens()), 0)))
			next.ServeHTTP(w, r)
		})
	}
}
