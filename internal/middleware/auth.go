package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cloudterm/console/internal/config"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RequireAuth checks the bearer token on API and websocket requests.
// Browsers cannot set headers on websocket upgrades, so the token is
// also accepted as a query parameter there.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if config.Cfg.AuthDisabled {
			next.ServeHTTP(w, r)
			return
		}

		if config.Cfg.AuthToken == "" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "Auth token not configured"})
			return
		}

		token := bearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(config.Cfg.AuthToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication required"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
