package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Auth guards state-changing requests (bets, market and campaign creation,
// resolution, claims, preferences). The caller presents the key either as
// "Authorization: Bearer <key>" or in X-API-Key. Reads stay public because
// they only expose chain state. An empty apiKey disables the check.
func Auth(apiKey string) func(http.Handler) http.Handler {
	want := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutates(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := presentedKey(r)
			switch {
			case !ok:
				denyRequest(w, "missing api key")
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				denyRequest(w, "invalid api key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func mutates(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

func presentedKey(r *http.Request) (string, bool) {
	if scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " "); found && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token, true
		}
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, true
	}
	return "", false
}

func denyRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="metamarket"`)
	writeError(w, http.StatusUnauthorized, msg)
}

// writeError matches the {"error": "..."} body the handlers produce.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
