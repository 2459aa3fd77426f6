package auth

import (
	"context"
	"time"

	"github.com/formhive/formhive/pkg/contextkeys"
)

// User represents a user or bot account
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email,omitempty"`
	FullName    string     `json:"full_name,omitempty"`
	IsBot       bool       `json:"is_bot"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Scope represents API token scopes
type Scope string

const (
	ScopeFormRead    Scope = "form:read"
	ScopeFormWrite   Scope = "form:write"
	ScopeFormShare   Scope = "form:share"
	ScopeOrgRead     Scope = "org:read"
	ScopeOrgWrite    Scope = "org:write"
	ScopeTokenCreate Scope = "token:create"
	ScopeTokenRevoke Scope = "token:revoke"
	ScopeAuditRead   Scope = "audit:read"
	ScopeAll         Scope = "*" // All permissions (for admin)
)

// APIToken represents an API token
type APIToken struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	TokenHash    string     `json:"-"` // Never expose hash
	TokenPrefix  string     `json:"token_prefix"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Scopes       []Scope    `json:"scopes"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    *int64     `json:"revoked_by,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// AuthContext holds authenticated user information
type AuthContext struct {
	User   *User
	Token  *APIToken
	Scopes []Scope
}

// HasScope checks if the context has a specific scope
func (ac *AuthContext) HasScope(scope Scope) bool {
	for _, s := range ac.Scopes {
		if s == ScopeAll {
			return true
		}
		if s == scope {
			return true
		}
	}
	return false
}

// NewContext stores the auth context on ctx.
func NewContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return contextkeys.WithAuth(ctx, authCtx)
}

// FromContext retrieves the auth context set by the auth middleware.
func FromContext(ctx context.Context) (*AuthContext, bool) {
	authCtx, ok := ctx.Value(contextkeys.AuthKey).(*AuthContext)
	return authCtx, ok
}
