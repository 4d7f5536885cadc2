package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/grounder-ai/grounder/internal/logging"
)

// authMiddleware gates the retrieval endpoint behind a static Bearer token.
// Every retrieval request spends an embedding call against the configured
// backend, so the endpoint is never left open by accident: an empty apiKey
// disables auth, and [New] logs a startup warning when that happens. Health
// and readiness probes are registered outside this middleware.
//
// Callers authenticate with:
//
//	Authorization: Bearer <apiKey>
//
// A missing or wrong token gets 401 with a WWW-Authenticate challenge. The
// presented token value is never logged, only whether one was present.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			log.Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="grounder"`)
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}

		if token != apiKey {
			log.Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="grounder" error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken pulls the token out of an "Authorization: Bearer <token>"
// header, or returns "" when the header is absent or not a Bearer scheme.
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
