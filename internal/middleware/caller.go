package middleware

import (
	"context"
	"net/http"

	"github.com/agentlens/feedback-engine/internal/domain/identity"
)

// Identity headers set by the upstream gateway after authentication.
// The engine trusts them; it never authenticates callers itself.
const (
	headerUserID      = "X-User-ID"
	headerUserName    = "X-User-Name"
	headerUserRole    = "X-User-Role"
	headerWorkspaceID = "X-Workspace-ID"
)

type callerCtxKey struct{}

// Caller is middleware that builds the authenticated caller from the
// identity headers and stores it in the request context. Requests
// without a user id or workspace id are rejected; an unknown or missing
// role degrades to viewer.
func Caller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := identity.Caller{
			ID:          r.Header.Get(headerUserID),
			Name:        r.Header.Get(headerUserName),
			Role:        identity.Role(r.Header.Get(headerUserRole)),
			WorkspaceID: r.Header.Get(headerWorkspaceID),
		}
		if caller.ID == "" || caller.WorkspaceID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing caller identity"}`))
			return
		}
		if !identity.ValidRoles[caller.Role] {
			caller.Role = identity.RoleViewer
		}

		ctx := context.WithValue(r.Context(), callerCtxKey{}, &caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerFromContext returns the caller stored in ctx, or nil if absent.
func CallerFromContext(ctx context.Context) *identity.Caller {
	caller, _ := ctx.Value(callerCtxKey{}).(*identity.Caller)
	return caller
}
