package auth

import (
	"context"

	"github.com/agromaq/crm-api/internal/access"
)

// Principal is the identity resolved once at the request boundary and
// threaded through every operation as an explicit argument.
type Principal struct {
	UserID      string
	Permissions access.Set
}

type principalKey struct{}

// WithPrincipal stores the resolved principal on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext extracts the principal if the request was authenticated.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
