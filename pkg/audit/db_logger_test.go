package audit

import (
	"context"
	"database/sql/driver"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var auditColumns = []string{
	"id", "timestamp", "event_type", "status",
	"user_id", "username", "organization_id", "token_id",
	"resource_type", "resource_id", "resource_name",
	"ip_address", "user_agent", "request_id",
	"method", "path", "status_code",
	"message", "error_message", "metadata", "changes",
}

func auditRow(id int64, eventType EventType, status EventStatus) []driver.Value {
	return []driver.Value{
		id, time.Now().UTC(), string(eventType), string(status),
		nil, "", nil, nil,
		"", "", "",
		"", "", "",
		"", "", 0,
		"", "", []byte(nil), []byte(nil),
	}
}

func newMockDBLogger(t *testing.T) (*DBLogger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	logger, err := NewDBLogger(db)
	require.NoError(t, err)
	return logger, mock
}

func expectInsert(mock sqlmock.Sqlmock, id int64) {
	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))
}

func TestNewDBLogger(t *testing.T) {
	t.Run("creates table", func(t *testing.T) {
		logger, mock := newMockDBLogger(t)
		assert.NotNil(t, logger)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil database rejected", func(t *testing.T) {
		logger, err := NewDBLogger(nil)
		require.Error(t, err)
		assert.Nil(t, logger)
	})

	t.Run("table creation failure surfaces", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").
			WillReturnError(errors.New("permission denied"))

		_, err = NewDBLogger(db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "audit_logs table")
	})
}

func TestDBLogger_Log(t *testing.T) {
	t.Run("backfills assigned ID", func(t *testing.T) {
		logger, mock := newMockDBLogger(t)
		expectInsert(mock, 42)

		userID := int64(7)
		event := &AuditEvent{
			Timestamp:    time.Now().UTC(),
			EventType:    EventTypeFormShare,
			Status:       EventStatusSuccess,
			UserID:       &userID,
			ResourceType: ResourceTypeForm,
			ResourceID:   "form-1",
			Metadata:     map[string]interface{}{"permission": "write"},
			Changes: &ChangeDetails{
				Before: map[string]interface{}{"default_permission": "no_access"},
				After:  map[string]interface{}{"default_permission": "read"},
			},
		}

		require.NoError(t, logger.Log(context.Background(), event))
		assert.Equal(t, int64(42), event.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure surfaces", func(t *testing.T) {
		logger, mock := newMockDBLogger(t)
		mock.ExpectQuery("INSERT INTO audit_logs").
			WillReturnError(errors.New("connection reset"))

		err := logger.Log(context.Background(), &AuditEvent{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeFormCreate,
			Status:    EventStatusSuccess,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert audit log")
	})
}

func TestDBLogger_KindHelpers(t *testing.T) {
	ctx := context.Background()
	userID := int64(3)
	adminID := int64(1)
	targetID := int64(9)

	tests := []struct {
		name string
		call func(l *DBLogger) error
	}{
		{"authentication", func(l *DBLogger) error {
			return l.LogAuthentication(ctx, EventTypeAuthLogin, &userID, "mallory", EventStatusFailure, "bad password")
		}},
		{"authorization", func(l *DBLogger) error {
			return l.LogAuthorization(ctx, EventTypeAccessDenied, &userID, ResourceTypeForm, "form-1", EventStatusDenied, "write access required")
		}},
		{"data mutation", func(l *DBLogger) error {
			return l.LogDataMutation(ctx, EventTypeFormUpdate, &userID, ResourceTypeForm, "form-1",
				&ChangeDetails{Before: map[string]interface{}{"name": "a"}, After: map[string]interface{}{"name": "b"}}, "renamed")
		}},
		{"admin action", func(l *DBLogger) error {
			return l.LogAdminAction(ctx, EventTypeAdminUserDeactivate, &adminID, &targetID, "deactivated")
		}},
		{"access", func(l *DBLogger) error {
			return l.LogAccess(ctx, EventTypeAccessFormRead, &userID, ResourceTypeForm, "form-1", "viewed")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, mock := newMockDBLogger(t)
			expectInsert(mock, 1)
			require.NoError(t, tt.call(logger))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDBLogger_LogHTTPRequest(t *testing.T) {
	for _, tt := range []struct {
		name       string
		statusCode int
	}{
		{"success", http.StatusOK},
		{"failure", http.StatusInternalServerError},
		{"denied", http.StatusForbidden},
	} {
		t.Run(tt.name, func(t *testing.T) {
			logger, mock := newMockDBLogger(t)
			expectInsert(mock, 1)

			r := httptest.NewRequest(http.MethodGet, "/forms/1", nil)
			err := logger.LogHTTPRequest(context.Background(), r, tt.statusCode, 25*time.Millisecond, nil)
			require.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDBLogger_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("no filters orders newest first", func(t *testing.T) {
		logger, mock := newMockDBLogger(t)
		rows := sqlmock.NewRows(auditColumns).
			AddRow(auditRow(2, EventTypeFormShare, EventStatusSuccess)...).
			AddRow(auditRow(1, EventTypeFormCreate, EventStatusSuccess)...)
		mock.ExpectQuery(`SELECT (.+) FROM audit_logs ORDER BY timestamp DESC`).
			WillReturnRows(rows)

		events, err := logger.Search(ctx, SearchFilter{})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, int64(2), events[0].ID)
	})

	t.Run("filters become positional conditions", func(t *testing.T) {
		logger, mock := newMockDBLogger(t)
		userID := int64(7)
		start := time.Now().Add(-time.Hour)
		mock.ExpectQuery(`WHERE timestamp >= \$1 AND user_id = \$2 ORDER BY timestamp DESC LIMIT \$3`).
			WithArgs(start, userID, 10).
			WillReturnRows(sqlmock.NewRows(auditColumns))

		_, err := logger.Search(ctx, SearchFilter{
			StartTime: &start,
			UserID:    &userID,
			Limit:     10,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("event type list", func(t *testing.T) {
		logger, mock := newMockDBLogger(t)
		mock.ExpectQuery(`WHERE event_type = ANY\(\$1\) ORDER BY timestamp DESC`).
			WillReturnRows(sqlmock.NewRows(auditColumns))

		_, err := logger.Search(ctx, SearchFilter{
			EventTypes: []EventType{EventTypeFormShare, EventTypeFormPermissionRevoke},
		})
		require.NoError(t, err)
	})

	t.Run("unknown sort column falls back to timestamp", func(t *testing.T) {
		logger, mock := newMockDBLogger(t)
		mock.ExpectQuery(`ORDER BY timestamp ASC`).
			WillReturnRows(sqlmock.NewRows(auditColumns))

		_, err := logger.Search(ctx, SearchFilter{
			SortBy:    "message; DROP TABLE audit_logs",
			SortOrder: "asc",
		})
		require.NoError(t, err)
	})

	t.Run("whitelisted sort column honored", func(t *testing.T) {
		logger, mock := newMockDBLogger(t)
		mock.ExpectQuery(`ORDER BY event_type DESC`).
			WillReturnRows(sqlmock.NewRows(auditColumns))

		_, err := logger.Search(ctx, SearchFilter{SortBy: "event_type"})
		require.NoError(t, err)
	})

	t.Run("query failure surfaces", func(t *testing.T) {
		logger, mock := newMockDBLogger(t)
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("timeout"))

		_, err := logger.Search(ctx, SearchFilter{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to search audit logs")
	})
}

func TestDBLogger_GetStats(t *testing.T) {
	logger, mock := newMockDBLogger(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(100))
	mock.ExpectQuery(`SELECT event_type, COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).
			AddRow("form.share", 60).AddRow("auth.login", 40))
	mock.ExpectQuery(`SELECT status, COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("success", 90).AddRow("denied", 10))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT user_id\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT ip_address\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(`event_type LIKE 'auth\.%' AND status = 'failure'`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`status = 'denied'`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))

	stats, err := logger.GetStats(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(100), stats.TotalEvents)
	assert.Equal(t, int64(60), stats.EventsByType[EventTypeFormShare])
	assert.Equal(t, int64(10), stats.EventsByStatus[EventStatusDenied])
	assert.Equal(t, int64(12), stats.UniqueUsers)
	assert.Equal(t, int64(3), stats.FailedAuthAttempts)
	assert.Equal(t, int64(10), stats.AccessDenials)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_Close(t *testing.T) {
	logger, _ := newMockDBLogger(t)
	// The pool is shared; Close must leave it open.
	assert.NoError(t, logger.Close())
}
