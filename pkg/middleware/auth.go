package middleware

import (
	"net/http"
	"strings"

	"github.com/formhive/formhive/pkg/audit"
	"github.com/formhive/formhive/pkg/auth"
	"github.com/formhive/formhive/pkg/contextkeys"
	"github.com/formhive/formhive/pkg/httputil"
)

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	tokenManager *auth.TokenManager
	optional     bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenManager *auth.TokenManager, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		tokenManager: tokenManager,
		optional:     optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		apiToken, err := m.tokenManager.ValidateToken(r.Context(), parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		user, err := m.tokenManager.GetUser(r.Context(), apiToken.UserID)
		if err != nil || !user.IsActive {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		authCtx := &auth.AuthContext{
			User:   user,
			Token:  apiToken,
			Scopes: apiToken.Scopes,
		}

		ctx := auth.NewContext(r.Context(), authCtx)
		ctx = contextkeys.WithUserID(ctx, user.ID)
		ctx = audit.WithAuditContext(ctx, &user.ID, user.Username, nil, &apiToken.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, ok := auth.FromContext(r.Context())
	if !ok {
		return nil
	}
	return authCtx
}

// RequireScope creates middleware that checks for a specific scope
func RequireScope(scope auth.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r)
			if authCtx == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			if !authCtx.HasScope(scope) {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
