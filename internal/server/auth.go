package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/mekonggpt/retrieval-go/internal/logging"
)

// authMiddleware returns an HTTP middleware that enforces Bearer token
// authentication against the configured shared secret.
//
// Protected routes must supply:
//
//	Authorization: Bearer <token>
//
// Requests missing or presenting an incorrect token receive 401 Unauthorized
// with a fixed message and a WWW-Authenticate: Bearer challenge, before the
// wrapped handler runs — so no datastore mutation or outbound call can occur.
// The invalid token value is never logged — only its presence/absence.
func authMiddleware(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			log.Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="mekonggpt"`)
			writeError(w, "Invalid or missing token", http.StatusUnauthorized)
			return
		}

		if token != secret {
			log.Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="mekonggpt" error="invalid_token"`)
			writeError(w, "Invalid or missing token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns an empty string if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return ""
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
