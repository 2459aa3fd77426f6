package audit

import (
	"context"
	"fmt"
	"time"
)

// Store is the query side of the audit trail. The write side is Logger;
// the two meet in the audit_logs table.
type Store interface {
	// Search returns events matching the filter, newest first by default.
	Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error)

	// Get returns one event by ID, or nil when no such event exists.
	Get(ctx context.Context, id int64) (*AuditEvent, error)

	// GetStats aggregates event counts over an optional time range.
	GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error)

	// Export renders matching events in the requested format.
	Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error)

	// Cleanup removes events older than the retention window and reports
	// how many were deleted.
	Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error)
}

// DBStore implements Store over the same database the DBLogger writes to.
type DBStore struct {
	logger *DBLogger
}

// NewDBStore creates a database-backed audit store.
func NewDBStore(logger *DBLogger) *DBStore {
	return &DBStore{logger: logger}
}

// Search returns events matching the filter.
func (s *DBStore) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	return s.logger.Search(ctx, filter)
}

// Get returns one event by ID, or nil when no such event exists.
func (s *DBStore) Get(ctx context.Context, id int64) (*AuditEvent, error) {
	events, err := s.logger.Search(ctx, SearchFilter{ID: &id, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return events[0], nil
}

// GetStats aggregates event counts over an optional time range.
func (s *DBStore) GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error) {
	return s.logger.GetStats(ctx, startTime, endTime)
}

// Export renders matching events in the requested format.
func (s *DBStore) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	events, err := s.logger.Search(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatCSV:
		return exportCSV(events)
	case ExportFormatNDJSON:
		return exportNDJSON(events)
	default:
		return exportJSON(events)
	}
}

// Cleanup removes events whose timestamp falls outside the retention
// window. A non-positive retention refuses to run rather than deleting
// the whole trail.
func (s *DBStore) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	if policy.RetentionDays <= 0 {
		return 0, fmt.Errorf("retention must be at least one day, got %d", policy.RetentionDays)
	}

	cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)
	result, err := s.logger.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired audit events: %w", err)
	}
	return result.RowsAffected()
}
