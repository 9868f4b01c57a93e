package auth

import (
	"net/http"
	"strings"

	"github.com/agromaq/crm-api/internal/common"
)

// Middleware resolves the request identity once and injects it into context.
type Middleware struct {
	Parser TokenParser
}

// RequireAuth enforces a valid bearer token before executing the next handler.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
			return
		}
		principal, err := m.Parser.Parse(token)
		if err != nil {
			common.JSONAppError(w, err)
			return
		}
		ctx := WithPrincipal(r.Context(), principal)
		ctx = common.WithUserID(ctx, principal.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
