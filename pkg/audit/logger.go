package audit

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Logger records audit events. Backends implement Log and Close; the
// kind-specific helpers are provided by eventKinds so every backend
// builds events the same way.
type Logger interface {
	Log(ctx context.Context, event *AuditEvent) error
	LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) error
	LogAuthorization(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error
	LogDataMutation(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error
	LogAdminAction(ctx context.Context, eventType EventType, adminUserID *int64, targetUserID *int64, message string) error
	LogAccess(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, message string) error
	LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error
	Close() error
}

type contextKey string

const (
	// AuditLoggerKey is the context key for the audit logger
	AuditLoggerKey contextKey = "audit_logger"

	// RequestStartTimeKey is the context key for request start time
	RequestStartTimeKey contextKey = "request_start_time"
)

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context, falling back to
// a no-op logger when none is set.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NoOp()
}

// NoOp returns a logger that discards every event. Services fall back to it
// when no audit logger is configured.
func NoOp() Logger {
	l := &noOpLogger{}
	l.eventKinds = eventKinds{sink: l.Log}
	return l
}

// WithRequestStartTime adds the request start time to the context
func WithRequestStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, RequestStartTimeKey, t)
}

// GetRequestStartTime retrieves the request start time from context
func GetRequestStartTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(RequestStartTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

type noOpLogger struct {
	eventKinds
}

func (l *noOpLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }
func (l *noOpLogger) Close() error                                     { return nil }

// eventKinds implements the kind-specific half of Logger on top of a
// single sink, so the DB, file, and multi backends don't each repeat
// the event construction.
type eventKinds struct {
	sink func(ctx context.Context, event *AuditEvent) error
}

// LogAuthentication records a login, logout, or token event.
func (k eventKinds) LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) error {
	event := newBaseEvent(ctx, nil, eventType, status)
	event.UserID = userID
	event.Username = username
	event.ResourceType = ResourceTypeUser
	event.Message = message
	return k.sink(ctx, event)
}

// LogAuthorization records the outcome of an access check.
func (k eventKinds) LogAuthorization(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	event := newBaseEvent(ctx, nil, eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return k.sink(ctx, event)
}

// LogDataMutation records a create, update, or delete with its before
// and after values.
func (k eventKinds) LogDataMutation(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	event := newBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	return k.sink(ctx, event)
}

// LogAdminAction records an administrative change, tagging the affected
// user in the metadata.
func (k eventKinds) LogAdminAction(ctx context.Context, eventType EventType, adminUserID *int64, targetUserID *int64, message string) error {
	event := newBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = adminUserID
	event.Message = message
	if targetUserID != nil {
		event.Metadata["target_user_id"] = *targetUserID
	}
	return k.sink(ctx, event)
}

// LogAccess records a read of a sensitive resource.
func (k eventKinds) LogAccess(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, message string) error {
	event := newBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return k.sink(ctx, event)
}

// LogHTTPRequest records a request's outcome; 403s are classified as
// denials, other 4xx/5xx as failures.
func (k eventKinds) LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error {
	status := EventStatusSuccess
	switch {
	case statusCode == http.StatusForbidden:
		status = EventStatusDenied
	case statusCode >= 400:
		status = EventStatusFailure
	}

	event := newBaseEvent(ctx, r, EventTypeAccessFormRead, status)
	event.StatusCode = statusCode
	event.Metadata["duration_ms"] = duration.Milliseconds()
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return k.sink(ctx, event)
}

// newBaseEvent builds an event stamped with the acting identity from
// the context and, when a request is given, its transport details.
func newBaseEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *AuditEvent {
	userID, username, orgID, tokenID := GetAuditContext(ctx)

	event := &AuditEvent{
		Timestamp:      time.Now().UTC(),
		EventType:      eventType,
		Status:         status,
		UserID:         userID,
		Username:       username,
		OrganizationID: orgID,
		TokenID:        tokenID,
		RequestID:      getContextString(ctx, "request_id"),
		Metadata:       make(map[string]interface{}),
	}

	if r != nil {
		event.IPAddress = getClientIP(r)
		event.UserAgent = r.UserAgent()
		event.Method = r.Method
		event.Path = r.URL.Path
	}

	return event
}

// getClientIP prefers proxy headers over the raw remote address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func getContextString(ctx context.Context, key string) string {
	if str, ok := ctx.Value(contextKey(key)).(string); ok {
		return str
	}
	return ""
}

// QuickLog records a bare event through the context's logger.
func QuickLog(ctx context.Context, eventType EventType, status EventStatus, message string) error {
	return FromContext(ctx).Log(ctx, &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Message:   message,
	})
}

// LogSuccess records a successful event through the context's logger.
func LogSuccess(ctx context.Context, eventType EventType, message string, metadata map[string]interface{}) error {
	event := newBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.Message = message
	if metadata != nil {
		event.Metadata = metadata
	}
	return FromContext(ctx).Log(ctx, event)
}

// LogFailure records a failed event through the context's logger.
func LogFailure(ctx context.Context, eventType EventType, message string, err error) error {
	event := newBaseEvent(ctx, nil, eventType, EventStatusFailure)
	event.Message = message
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return FromContext(ctx).Log(ctx, event)
}

// LogDenied records an access denial through the context's logger.
func LogDenied(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, reason string) error {
	event := newBaseEvent(ctx, nil, eventType, EventStatusDenied)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = fmt.Sprintf("Access denied: %s", reason)
	return FromContext(ctx).Log(ctx, event)
}
