package audit

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportFixture() []*AuditEvent {
	userID := int64(7)
	return []*AuditEvent{
		{
			ID:           1,
			Timestamp:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			EventType:    EventTypeFormShare,
			Status:       EventStatusSuccess,
			UserID:       &userID,
			Username:     "dana",
			ResourceType: ResourceTypeForm,
			ResourceID:   "form-1",
			StatusCode:   200,
		},
		{
			ID:        2,
			Timestamp: time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC),
			EventType: EventTypeAccessDenied,
			Status:    EventStatusDenied,
			Message:   "Access denied: write access required",
		},
	}
}

func TestExportJSON(t *testing.T) {
	data, err := exportJSON(exportFixture())
	require.NoError(t, err)

	var events []*AuditEvent
	require.NoError(t, json.Unmarshal(data, &events))
	require.Len(t, events, 2)
	assert.Equal(t, "dana", events[0].Username)
}

func TestExportNDJSON(t *testing.T) {
	data, err := exportNDJSON(exportFixture())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var second AuditEvent
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, EventStatusDenied, second.Status)
}

func TestExportCSV(t *testing.T) {
	data, err := exportCSV(exportFixture())
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, csvColumns, records[0])

	row := records[1]
	assert.Equal(t, "1", row[0])
	assert.Equal(t, "2026-08-01T12:00:00Z", row[1])
	assert.Equal(t, "form.share", row[2])
	assert.Equal(t, "7", row[4])
	assert.Equal(t, "dana", row[5])

	// Absent pointers render as empty cells, not "0".
	assert.Equal(t, "", records[2][4])
}

func TestExportCSV_Empty(t *testing.T) {
	data, err := exportCSV(nil)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1, "header only")
}

func TestInt64PtrString(t *testing.T) {
	v := int64(42)
	assert.Equal(t, "42", int64PtrString(&v))
	assert.Equal(t, "", int64PtrString(nil))
}
