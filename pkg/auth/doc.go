// Package auth provides API token authentication for Formhive.
//
// # Overview
//
// This package implements token generation with cryptographic security,
// scope-based permissions, and the request-scoped authentication context the
// HTTP middleware injects. It supports both human users and bot accounts.
//
// # API Tokens
//
// Tokens are random, prefixed, and stored hashed:
//
//	generator := auth.NewTokenGenerator()
//	token, hash, prefix, err := generator.GenerateToken()
//	// token:  fh_[base64url(32 random bytes)] (shown to the user once)
//	// hash:   SHA256(token) (stored in the database)
//	// prefix: fh_xxxxxxxx (stored for display in token lists)
//
// Create and validate through the manager:
//
//	manager := auth.NewTokenManager(db)
//	stored, token, err := manager.CreateToken(ctx, user.ID, "CI Pipeline", "",
//		[]auth.Scope{auth.ScopeFormRead, auth.ScopeFormWrite}, &expiresAt)
//
//	apiToken, err := manager.ValidateToken(ctx, token)
//
// # Scopes
//
//	ScopeFormRead    - Read forms
//	ScopeFormWrite   - Create/update/delete forms
//	ScopeFormShare   - Change form sharing and permissions
//	ScopeOrgRead     - Read organization data
//	ScopeOrgWrite    - Manage organization
//	ScopeTokenCreate - Create API tokens
//	ScopeTokenRevoke - Revoke API tokens
//	ScopeAuditRead   - Read audit events
//	ScopeAll         - Full access
//
// # Authorization Context
//
// The auth middleware stores an AuthContext on the request context:
//
//	authCtx, ok := auth.FromContext(r.Context())
//	if !ok || authCtx.User == nil {
//		http.Error(w, "Unauthorized", http.StatusUnauthorized)
//		return
//	}
//	if !authCtx.HasScope(auth.ScopeFormWrite) {
//		http.Error(w, "Forbidden", http.StatusForbidden)
//		return
//	}
//
// # Bot Accounts
//
// Bot accounts are users with IsBot=true, typically for automation. Bots
// cannot log in with a password and authenticate with API tokens only.
//
// # Related Packages
//
//   - pkg/middleware: HTTP authentication middleware
//   - pkg/access: Per-form permission checks
//   - pkg/orgs: Organization management
//   - pkg/audit: Security audit logging
package auth
