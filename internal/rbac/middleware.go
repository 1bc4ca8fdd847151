package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/taskforge/taskforge/internal/platform/httpx"
	"github.com/taskforge/taskforge/internal/shared"
)

// PermissionChecker is the contract the gate needs from the resolver.
type PermissionChecker interface {
	Resolve(ctx context.Context, userID int64) ([]string, error)
}

// Gate is the request-time authorization middleware. It consults the
// permission resolver for the current principal and allows or denies the
// wrapped handler. Resolver failures surface as internal errors, never as a
// denial, and denials never reveal which permission was required.
type Gate struct {
	Resolver PermissionChecker
	Logger   *slog.Logger
}

// RequirePermission ensures the current principal holds the permission key.
func (g Gate) RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			granted, err := g.Resolver.Resolve(r.Context(), principal.UserID)
			if err != nil {
				if g.Logger != nil {
					g.Logger.Error("resolve permissions", slog.Int64("user_id", principal.UserID), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if !Has(granted, perm) {
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
