package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/atelierhq/portal-server-go/internal/audit"
	"github.com/atelierhq/portal-server-go/internal/util"
)

// OperatorAuthMiddleware gates the internal admin API behind a static API
// key checked against a bcrypt hash. An empty configured hash disables the
// surface entirely rather than leaving it open.
type OperatorAuthMiddleware struct {
	keyHash string
}

func NewOperatorAuthMiddleware(keyHash string) *OperatorAuthMiddleware {
	return &OperatorAuthMiddleware{keyHash: keyHash}
}

func (m *OperatorAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.keyHash == "" {
			log.Error().Msg("operator API key hash not configured; admin API disabled")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "Admin API is not configured",
			})
			return
		}

		key := extractOperatorKey(r)
		if key == "" || !util.CheckKeyHash(key, m.keyHash) {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventOperatorAuthFail})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid operator key",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractOperatorKey(r *http.Request) string {
	if key := r.Header.Get("X-Operator-Key"); key != "" {
		return key
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
