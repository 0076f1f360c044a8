package middleware

import (
	"context"
	"net/http"
	"slices"

	"github.com/nkiryanov/newsdesk/internal/handlers/render"
	"github.com/nkiryanov/newsdesk/internal/models"
)

type roleSource interface {
	Sync(ctx context.Context) error
	EffectiveRole() models.Role
}

// RoleMiddleware lets through only requests made while current role is one of roles
// Role is read after queued auth events are applied, so request right after sign out is rejected
func RoleMiddleware(rs roleSource, roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := rs.Sync(r.Context()); err != nil {
				if r.Context().Err() != nil {
					return
				}
				render.ServiceError(w, "Service is shutting down", http.StatusServiceUnavailable)
				return
			}

			role := rs.EffectiveRole()

			switch {
			case slices.Contains(roles, role):
				next.ServeHTTP(w, r)
			case role == models.RoleGuest:
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			default:
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
			}
		})
	}
}
