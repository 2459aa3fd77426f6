// Package contextkeys defines every context key the application uses.
// Keeping them in one leaf package lets middleware and handlers share
// values without import cycles (auth -> contextkeys <- observability).
package contextkeys

import "context"

// Key is a distinct string type so our values can't collide with keys
// set by other libraries.
type Key string

const (
	// AuthKey carries *auth.AuthContext, set by the auth middleware for
	// every authenticated request.
	AuthKey Key = "auth_context"

	// OrgKey carries *orgs.Organization on org-scoped routes, set by the
	// org context middleware.
	OrgKey Key = "organization"

	// AccessDecisionKey carries *access.AccessDecision, set by the form
	// access middleware so handlers see the decided permission and form.
	AccessDecisionKey Key = "access_decision"

	// RequestIDKey carries the request ID string stamped on logs and
	// audit events.
	RequestIDKey Key = "request_id"

	// UserIDKey carries the authenticated user's int64 ID.
	UserIDKey Key = "user_id"

	// LoggerKey carries the request-scoped *observability.Logger.
	LoggerKey Key = "logger"

	// AuditLoggerKey carries the audit.Logger the audit middleware
	// installed for the request.
	AuditLoggerKey Key = "audit_logger"
)

// The With/Get helpers below take interface{} where the concrete type
// lives in a package that imports this one; callers assert on read.

// WithAuth stores the auth context.
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithOrg stores the resolved organization.
func WithOrg(ctx context.Context, org interface{}) context.Context {
	return context.WithValue(ctx, OrgKey, org)
}

// WithAccessDecision stores the form access decision.
func WithAccessDecision(ctx context.Context, decision interface{}) context.Context {
	return context.WithValue(ctx, AccessDecisionKey, decision)
}

// GetAccessDecision returns the stored access decision, or nil.
func GetAccessDecision(ctx context.Context) interface{} {
	return ctx.Value(AccessDecisionKey)
}

// WithRequestID stores the request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID returns the request ID, or "" when none was set.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithUserID stores the authenticated user ID.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID returns the user ID; zero means unauthenticated.
func GetUserID(ctx context.Context) int64 {
	if userID, ok := ctx.Value(UserIDKey).(int64); ok {
		return userID
	}
	return 0
}

// WithLogger stores the request-scoped logger.
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuditLogger stores the request's audit logger.
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}
