package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// WithCORS allows browser front-ends on any origin to call the API and
// answers pre-flight requests.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAccessCode checks the bearer access code. Without a configured
// code every request passes.
func (s *Server) requireAccessCode(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AccessCode == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		switch {
		case header == "":
			unauthorized(w, "Missing Authorization header")
		case !strings.HasPrefix(header, "Bearer "):
			unauthorized(w, "Invalid Authorization header format. Expected: Bearer <access_code>")
		case subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(header, "Bearer ")), []byte(s.cfg.AccessCode)) != 1:
			unauthorized(w, "Invalid access code")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func unauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized", Message: message})
}
