package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/atelierhq/portal-server-go/internal/audit"
	"github.com/atelierhq/portal-server-go/internal/httputil"
	"github.com/atelierhq/portal-server-go/internal/service"
)

type contextKey string

const GrantContextKey contextKey = "grant"

// GetGrant returns the resolved portal grant from the request context, or
// nil outside the portal auth middleware.
func GetGrant(ctx context.Context) *service.Grant {
	if grant, ok := ctx.Value(GrantContextKey).(*service.Grant); ok {
		return grant
	}
	return nil
}

// PortalAuthMiddleware resolves the presented portal token and stores the
// grant in the request context. Resource-level checks stay with the access
// service in each handler; this gate only establishes who is asking.
type PortalAuthMiddleware struct {
	access *service.AccessService
}

func NewPortalAuthMiddleware(access *service.AccessService) *PortalAuthMiddleware {
	return &PortalAuthMiddleware{access: access}
}

func (m *PortalAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		grant, err := m.access.ResolveToken(r.Context(), token)
		if err != nil {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventTokenRejected})
			httputil.WriteError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), GrantContextKey, grant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractToken pulls the portal token from the Authorization header or, for
// links and EventSource connections that cannot set headers, the token query
// parameter.
func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return r.URL.Query().Get("token")
}
