package audit

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Context keys for the actor identity attached by the auth middleware.
const (
	auditUserIDKey   contextKey = "audit_user_id"
	auditUsernameKey contextKey = "audit_username"
	auditOrgIDKey    contextKey = "audit_org_id"
	auditTokenIDKey  contextKey = "audit_token_id"
)

// sensitivePrefixes lists route prefixes whose reads are always logged,
// even when only mutations are being recorded.
var sensitivePrefixes = []string{
	"/api/v1/audit",
	"/api/v1/tokens",
}

// sensitiveSuffixes marks the sharing surface: reading a form's grant list
// is itself a sensitive access.
var sensitiveSuffixes = []string{
	"/permissions",
	"/share",
}

// Middleware records HTTP requests into the audit trail. With
// logAllRequests false, only mutations, errors, and sensitive reads are
// recorded.
type Middleware struct {
	logger         Logger
	logAllRequests bool
}

// NewMiddleware creates audit middleware writing through logger.
func NewMiddleware(logger Logger, logAllRequests bool) *Middleware {
	return &Middleware{logger: logger, logAllRequests: logAllRequests}
}

// responseWriter captures the status code for the audit record.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Handler wraps next with audit recording. The logger rides along in the
// request context so handlers can emit their own events against the same
// trail.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := WithLogger(r.Context(), m.logger)
		ctx = WithRequestStartTime(ctx, start)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		if !m.logAllRequests && !m.shouldLogRequest(r, wrapped.statusCode) {
			return
		}
		// A failed audit write must not fail the request it describes.
		_ = m.logger.LogHTTPRequest(ctx, r, wrapped.statusCode, time.Since(start), nil)
	})
}

// shouldLogRequest applies the selective-logging policy: every mutation,
// every error response, and reads of sensitive endpoints.
func (m *Middleware) shouldLogRequest(r *http.Request, statusCode int) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return true
	}
	if statusCode >= 400 {
		return true
	}
	return isSensitiveEndpoint(r.URL.Path)
}

func isSensitiveEndpoint(path string) bool {
	for _, prefix := range sensitivePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// WithAuditContext records the acting identity so every event logged under
// this context carries it. The auth middleware calls this once the token
// is validated.
func WithAuditContext(ctx context.Context, userID *int64, username string, orgID *int64, tokenID *int64) context.Context {
	if userID != nil {
		ctx = context.WithValue(ctx, auditUserIDKey, *userID)
	}
	if username != "" {
		ctx = context.WithValue(ctx, auditUsernameKey, username)
	}
	if orgID != nil {
		ctx = context.WithValue(ctx, auditOrgIDKey, *orgID)
	}
	if tokenID != nil {
		ctx = context.WithValue(ctx, auditTokenIDKey, *tokenID)
	}
	return ctx
}

// GetAuditContext returns the acting identity recorded by WithAuditContext.
// Absent fields come back as nil or empty.
func GetAuditContext(ctx context.Context) (userID *int64, username string, orgID *int64, tokenID *int64) {
	if id, ok := ctx.Value(auditUserIDKey).(int64); ok {
		userID = &id
	}
	if name, ok := ctx.Value(auditUsernameKey).(string); ok {
		username = name
	}
	if id, ok := ctx.Value(auditOrgIDKey).(int64); ok {
		orgID = &id
	}
	if id, ok := ctx.Value(auditTokenIDKey).(int64); ok {
		tokenID = &id
	}
	return
}
