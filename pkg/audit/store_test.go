package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*DBStore, sqlmock.Sqlmock) {
	t.Helper()
	logger, mock := newMockDBLogger(t)
	return NewDBStore(logger), mock
}

func TestDBStore_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`WHERE id = \$1 ORDER BY timestamp DESC LIMIT \$2`).
			WithArgs(int64(5), 1).
			WillReturnRows(sqlmock.NewRows(auditColumns).
				AddRow(auditRow(5, EventTypeFormShare, EventStatusSuccess)...))

		event, err := store.Get(ctx, 5)
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, int64(5), event.ID)
		assert.Equal(t, EventTypeFormShare, event.EventType)
	})

	t.Run("not found returns nil", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows(auditColumns))

		event, err := store.Get(ctx, 99)
		require.NoError(t, err)
		assert.Nil(t, event)
	})

	t.Run("query error surfaces", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("timeout"))

		_, err := store.Get(ctx, 5)
		require.Error(t, err)
	})
}

func TestDBStore_Export(t *testing.T) {
	ctx := context.Background()

	seed := func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SELECT").
			WillReturnRows(sqlmock.NewRows(auditColumns).
				AddRow(auditRow(1, EventTypeFormShare, EventStatusSuccess)...).
				AddRow(auditRow(2, EventTypeAccessDenied, EventStatusDenied)...))
	}

	t.Run("json", func(t *testing.T) {
		store, mock := newMockStore(t)
		seed(mock)

		data, err := store.Export(ctx, SearchFilter{}, ExportFormatJSON)
		require.NoError(t, err)

		var events []*AuditEvent
		require.NoError(t, json.Unmarshal(data, &events))
		require.Len(t, events, 2)
		assert.Equal(t, EventTypeFormShare, events[0].EventType)
	})

	t.Run("ndjson one object per line", func(t *testing.T) {
		store, mock := newMockStore(t)
		seed(mock)

		data, err := store.Export(ctx, SearchFilter{}, ExportFormatNDJSON)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 2)
		var event AuditEvent
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &event))
		assert.Equal(t, int64(2), event.ID)
	})

	t.Run("csv with header", func(t *testing.T) {
		store, mock := newMockStore(t)
		seed(mock)

		data, err := store.Export(ctx, SearchFilter{}, ExportFormatCSV)
		require.NoError(t, err)

		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3, "header plus two rows")
		assert.Equal(t, "id", records[0][0])
		assert.Equal(t, "form.share", records[1][2])
	})

	t.Run("search error surfaces", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("timeout"))

		_, err := store.Export(ctx, SearchFilter{}, ExportFormatJSON)
		require.Error(t, err)
	})
}

func TestDBStore_GetStats(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(`SELECT event_type, COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).AddRow("form.share", 7))
	mock.ExpectQuery(`SELECT status, COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("success", 7))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT user_id\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT ip_address\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`status = 'failure'`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`status = 'denied'`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	stats, err := store.GetStats(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.TotalEvents)
}

func TestDBStore_Cleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes expired events", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`DELETE FROM audit_logs WHERE timestamp < \$1`).
			WillReturnResult(sqlmock.NewResult(0, 250))

		deleted, err := store.Cleanup(ctx, RetentionPolicy{RetentionDays: 90})
		require.NoError(t, err)
		assert.Equal(t, int64(250), deleted)
	})

	t.Run("refuses non-positive retention", func(t *testing.T) {
		store, _ := newMockStore(t)

		_, err := store.Cleanup(ctx, RetentionPolicy{RetentionDays: 0})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retention")
	})

	t.Run("delete failure surfaces", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("DELETE FROM audit_logs").
			WillReturnError(errors.New("lock timeout"))

		_, err := store.Cleanup(ctx, RetentionPolicy{RetentionDays: 30})
		require.Error(t, err)
	})
}

func TestDefaultRetentionPolicy(t *testing.T) {
	policy := DefaultRetentionPolicy()
	assert.Equal(t, 90, policy.RetentionDays)
	assert.True(t, policy.ArchiveEnabled)
}
