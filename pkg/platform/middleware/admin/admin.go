package admin

import (
	"log/slog"
	"net/http"
	"slices"

	"kycflow/pkg/requestcontext"
)

// RequireRole admits only actors whose role is one of roles. The role comes
// from the identity collaborator and is trusted as-is.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role := requestcontext.Role(ctx)
			if !slices.Contains(roles, role) {
				logger.WarnContext(ctx, "role not permitted",
					"request_id", requestcontext.RequestID(ctx),
					"actor", requestcontext.Actor(ctx),
					"role", role,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"insufficient role"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
