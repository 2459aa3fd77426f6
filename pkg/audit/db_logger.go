package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// DBLogger persists audit events to PostgreSQL. It is the queryable
// backend: Search and GetStats serve the audit API.
type DBLogger struct {
	eventKinds
	db *sql.DB
}

// NewDBLogger creates a database audit logger, creating the audit_logs
// table on first use.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	logger.eventKinds = eventKinds{sink: logger.Log}

	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}
	return logger, nil
}

func (l *DBLogger) ensureTable() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id BIGINT,
		username VARCHAR(255),
		organization_id BIGINT,
		token_id BIGINT,
		resource_type VARCHAR(50),
		resource_id VARCHAR(255),
		resource_name VARCHAR(255),
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		status_code INTEGER,
		message TEXT,
		error_message TEXT,
		metadata JSONB,
		changes JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_organization_id ON audit_logs(organization_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_status ON audit_logs(status);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_ip_address ON audit_logs(ip_address);
	`)
	return err
}

// Log inserts the event and backfills its assigned ID.
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	var metadataJSON, changesJSON []byte
	var err error

	if event.Metadata != nil {
		if metadataJSON, err = json.Marshal(event.Metadata); err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if event.Changes != nil {
		if changesJSON, err = json.Marshal(event.Changes); err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	err = l.db.QueryRowContext(ctx, `
		INSERT INTO audit_logs (
			timestamp, event_type, status,
			user_id, username, organization_id, token_id,
			resource_type, resource_id, resource_name,
			ip_address, user_agent, request_id,
			method, path, status_code,
			message, error_message, metadata, changes
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15, $16,
			$17, $18, $19, $20
		) RETURNING id`,
		event.Timestamp, event.EventType, event.Status,
		event.UserID, event.Username, event.OrganizationID, event.TokenID,
		event.ResourceType, event.ResourceID, event.ResourceName,
		event.IPAddress, event.UserAgent, event.RequestID,
		event.Method, event.Path, event.StatusCode,
		event.Message, event.ErrorMessage, metadataJSON, changesJSON,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// whereBuilder accumulates positional conditions for a filtered query.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

func (b *whereBuilder) add(column, op string, value interface{}) {
	b.conditions = append(b.conditions, fmt.Sprintf("%s %s $%d", column, op, len(b.args)+1))
	b.args = append(b.args, value)
}

func (b *whereBuilder) clause() string {
	if len(b.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conditions, " AND ")
}

func (b *whereBuilder) placeholder(value interface{}) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

// sortColumns are the only fields Search will order by; anything else
// falls back to timestamp so the filter can't inject SQL.
var sortColumns = map[string]bool{
	"id": true, "timestamp": true, "event_type": true, "status": true,
	"user_id": true, "organization_id": true, "resource_type": true,
}

func buildSearchWhere(filter SearchFilter) *whereBuilder {
	b := &whereBuilder{}

	if filter.ID != nil {
		b.add("id", "=", *filter.ID)
	}
	if filter.StartTime != nil {
		b.add("timestamp", ">=", *filter.StartTime)
	}
	if filter.EndTime != nil {
		b.add("timestamp", "<=", *filter.EndTime)
	}
	if filter.UserID != nil {
		b.add("user_id", "=", *filter.UserID)
	}
	if filter.Username != "" {
		b.add("username", "=", filter.Username)
	}
	if filter.OrganizationID != nil {
		b.add("organization_id", "=", *filter.OrganizationID)
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			types[i] = string(et)
		}
		b.conditions = append(b.conditions, fmt.Sprintf("event_type = ANY($%d)", len(b.args)+1))
		b.args = append(b.args, pq.Array(types))
	}
	if filter.Status != nil {
		b.add("status", "=", string(*filter.Status))
	}
	if filter.ResourceType != "" {
		b.add("resource_type", "=", string(filter.ResourceType))
	}
	if filter.ResourceID != "" {
		b.add("resource_id", "=", filter.ResourceID)
	}
	if filter.IPAddress != "" {
		b.add("ip_address", "=", filter.IPAddress)
	}
	if filter.Method != "" {
		b.add("method", "=", filter.Method)
	}
	if filter.Path != "" {
		b.add("path", "LIKE", "%"+filter.Path+"%")
	}

	return b
}

// Search returns the events matching the filter, newest first unless
// the filter orders otherwise.
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	b := buildSearchWhere(filter)

	query := `
		SELECT
			id, timestamp, event_type, status,
			user_id, username, organization_id, token_id,
			resource_type, resource_id, resource_name,
			ip_address, user_agent, request_id,
			method, path, status_code,
			message, error_message, metadata, changes
		FROM audit_logs` + b.clause()

	sortBy := "timestamp"
	if sortColumns[filter.SortBy] {
		sortBy = filter.SortBy
	}
	order := "DESC"
	if filter.SortOrder == "asc" {
		order = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, order)

	if filter.Limit > 0 {
		query += " LIMIT " + b.placeholder(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + b.placeholder(filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0)
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return events, nil
}

func scanAuditEvent(rows *sql.Rows) (*AuditEvent, error) {
	event := &AuditEvent{Metadata: make(map[string]interface{})}
	var metadataJSON, changesJSON []byte

	err := rows.Scan(
		&event.ID, &event.Timestamp, &event.EventType, &event.Status,
		&event.UserID, &event.Username, &event.OrganizationID, &event.TokenID,
		&event.ResourceType, &event.ResourceID, &event.ResourceName,
		&event.IPAddress, &event.UserAgent, &event.RequestID,
		&event.Method, &event.Path, &event.StatusCode,
		&event.Message, &event.ErrorMessage, &metadataJSON, &changesJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if len(changesJSON) > 0 {
		event.Changes = &ChangeDetails{}
		if err := json.Unmarshal(changesJSON, event.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
		}
	}

	return event, nil
}

// GetStats aggregates event counts for the optional time range.
func (l *DBLogger) GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error) {
	stats := &AuditStats{
		EventsByType:         make(map[EventType]int64),
		EventsByStatus:       make(map[EventStatus]int64),
		EventsByUser:         make(map[int64]int64),
		EventsByOrganization: make(map[int64]int64),
		EventsByResource:     make(map[ResourceType]int64),
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	if startTime != nil {
		args = append(args, *startTime)
		where += fmt.Sprintf(" AND timestamp >= $%d", len(args))
		stats.TimeRange = &TimeRange{Start: *startTime}
	}
	if endTime != nil {
		args = append(args, *endTime)
		where += fmt.Sprintf(" AND timestamp <= $%d", len(args))
		if stats.TimeRange == nil {
			stats.TimeRange = &TimeRange{}
		}
		stats.TimeRange.End = *endTime
	}

	err := l.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM audit_logs %s", where), args...).Scan(&stats.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to get total events: %w", err)
	}

	if err := l.countGrouped(ctx, where, args, "event_type", func(key string, count int64) {
		stats.EventsByType[EventType(key)] = count
	}); err != nil {
		return nil, fmt.Errorf("failed to get events by type: %w", err)
	}

	if err := l.countGrouped(ctx, where, args, "status", func(key string, count int64) {
		stats.EventsByStatus[EventStatus(key)] = count
	}); err != nil {
		return nil, fmt.Errorf("failed to get events by status: %w", err)
	}

	scalars := []struct {
		query string
		dest  *int64
		label string
	}{
		{"SELECT COUNT(DISTINCT user_id) FROM audit_logs %s AND user_id IS NOT NULL", &stats.UniqueUsers, "unique users"},
		{"SELECT COUNT(DISTINCT ip_address) FROM audit_logs %s AND ip_address IS NOT NULL", &stats.UniqueIPs, "unique IPs"},
		{"SELECT COUNT(*) FROM audit_logs %s AND event_type LIKE 'auth.%%' AND status = 'failure'", &stats.FailedAuthAttempts, "failed auth attempts"},
		{"SELECT COUNT(*) FROM audit_logs %s AND status = 'denied'", &stats.AccessDenials, "access denials"},
	}
	for _, s := range scalars {
		if err := l.db.QueryRowContext(ctx, fmt.Sprintf(s.query, where), args...).Scan(s.dest); err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", s.label, err)
		}
	}

	return stats, nil
}

func (l *DBLogger) countGrouped(ctx context.Context, where string, args []interface{}, column string, record func(key string, count int64)) error {
	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_logs %s GROUP BY %s", column, where, column), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		record(key, count)
	}
	return rows.Err()
}

// Close is a no-op; the connection pool is shared and owned by the caller.
func (l *DBLogger) Close() error {
	return nil
}
