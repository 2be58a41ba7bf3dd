package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/phonegate/phonegate/internal/authz"
	"github.com/phonegate/phonegate/internal/domain/identity"
	"github.com/phonegate/phonegate/internal/token"
)

// Principal is the per-request view of the caller, extracted from the bearer
// token by the gate. An absent or malformed token yields an anonymous
// principal with no roles rather than an error; role checks then decide.
type Principal struct {
	UserID string
	Roles  []string
	Claims identity.ClaimSet
}

type principalKey struct{}

// PrincipalFrom returns the request principal. The second return is false
// for routes that never went through the gate.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Gate ties the token decoder to the requirement registry. Handlers are
// registered under a (class, method) pair whose requirement is resolved once
// at route-registration time; an unregistered pair panics there, at startup,
// instead of surfacing as an open endpoint in production.
type Gate struct {
	Decoder  *token.Decoder
	Registry *authz.Registry
	Logger   *slog.Logger
}

// Protect returns a middleware enforcing the declared requirement for the
// given handler class and method.
func (g *Gate) Protect(class, method string) func(http.Handler) http.Handler {
	req := g.Registry.Resolve(class, method)
	if !req.Declared() {
		panic("httpx: no role requirement declared for " + class + "." + method)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := g.Decoder.DecodeRequest(r)
			principal := Principal{
				UserID: g.Decoder.Subject(claims),
				Roles:  g.Decoder.Roles(claims),
				Claims: claims,
			}

			decision := authz.Authorize(principal.Roles, req)
			if !decision.Allowed {
				if g.Logger != nil {
					g.Logger.InfoContext(r.Context(), "access denied",
						slog.String("path", r.URL.Path),
						slog.String("user_id", principal.UserID),
						slog.Any("required_roles", decision.RequiredRoles),
						slog.Any("user_roles", decision.UserRoles),
					)
				}
				writeAccessDenied(w, decision)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAccessDenied renders the 403 body, including both role sets so a
// client can see exactly what was missing.
func writeAccessDenied(w http.ResponseWriter, d authz.Decision) {
	userRoles := d.UserRoles
	if userRoles == nil {
		userRoles = []string{}
	}
	WriteJSON(w, http.StatusForbidden, map[string]any{
		"error":          "Access denied",
		"message":        "Insufficient privileges",
		"required_roles": d.RequiredRoles,
		"user_roles":     userRoles,
	})
}
