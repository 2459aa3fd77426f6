package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// exportJSON renders events as an indented JSON array.
func exportJSON(events []*AuditEvent) ([]byte, error) {
	return json.MarshalIndent(events, "", "  ")
}

// exportNDJSON renders one JSON object per line, suitable for streaming
// into log pipelines.
func exportNDJSON(events []*AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			return nil, fmt.Errorf("failed to encode event %d: %w", event.ID, err)
		}
	}
	return buf.Bytes(), nil
}

// csvColumns fixes the CSV export layout. Column names match the JSON
// field names so a consumer can correlate the two formats.
var csvColumns = []string{
	"id", "timestamp", "event_type", "status",
	"user_id", "username", "organization_id", "token_id",
	"resource_type", "resource_id", "resource_name",
	"ip_address", "user_agent", "request_id",
	"method", "path", "status_code",
	"message", "error_message",
}

// exportCSV renders events as CSV with a header row. Timestamps are
// RFC 3339 so the export round-trips through the search filters.
func exportCSV(events []*AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvColumns); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		row := []string{
			strconv.FormatInt(event.ID, 10),
			event.Timestamp.Format(time.RFC3339),
			string(event.EventType),
			string(event.Status),
			int64PtrString(event.UserID),
			event.Username,
			int64PtrString(event.OrganizationID),
			int64PtrString(event.TokenID),
			string(event.ResourceType),
			event.ResourceID,
			event.ResourceName,
			event.IPAddress,
			event.UserAgent,
			event.RequestID,
			event.Method,
			event.Path,
			strconv.Itoa(event.StatusCode),
			event.Message,
			event.ErrorMessage,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row for event %d: %w", event.ID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func int64PtrString(val *int64) string {
	if val == nil {
		return ""
	}
	return strconv.FormatInt(*val, 10)
}
