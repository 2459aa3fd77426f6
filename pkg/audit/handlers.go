package audit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/formhive/formhive/pkg/httputil"
)

const (
	defaultSearchLimit = 100
	maxSearchLimit     = 1000
)

// sortableColumns whitelists the columns a caller may sort by. Anything
// else falls back to the timestamp ordering.
var sortableColumns = map[string]bool{
	"timestamp":  true,
	"event_type": true,
	"status":     true,
	"user_id":    true,
}

// Handlers exposes the audit trail over HTTP. All routes sit behind the
// audit:read scope; registration wires them under the API prefix.
type Handlers struct {
	store Store
}

// NewHandlers creates audit trail handlers backed by store.
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers the audit trail routes on router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/events", h.listEvents).Methods("GET")
	router.HandleFunc("/audit/events/{id:[0-9]+}", h.getEvent).Methods("GET")
	router.HandleFunc("/audit/export", h.exportEvents).Methods("GET")
	router.HandleFunc("/audit/stats", h.getStats).Methods("GET")
}

func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	filter := h.parseFilter(r)

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (h *Handlers) getEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid event ID")
		return
	}

	event, err := h.store.Get(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if event == nil {
		httputil.WriteNotFoundError(w, "audit event not found")
		return
	}

	httputil.WriteSuccess(w, event)
}

func (h *Handlers) exportEvents(w http.ResponseWriter, r *http.Request) {
	filter := h.parseFilter(r)
	// Exports walk the full match set; the pagination defaults do not apply.
	filter.Limit = 0
	filter.Offset = 0

	format := ExportFormat(r.URL.Query().Get("format"))
	switch format {
	case "":
		format = ExportFormatJSON
	case ExportFormatJSON, ExportFormatCSV, ExportFormatNDJSON:
	default:
		httputil.WriteValidationError(w, "unsupported export format: "+string(format))
		return
	}

	data, err := h.store.Export(r.Context(), filter, format)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	switch format {
	case ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-logs.csv"`)
	case ExportFormatNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-logs.ndjson"`)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-logs.json"`)
	}
	w.Write(data)
}

func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	var startTime, endTime *time.Time
	if t, ok := parseTimeParam(r, "start_time"); ok {
		startTime = &t
	}
	if t, ok := parseTimeParam(r, "end_time"); ok {
		endTime = &t
	}

	stats, err := h.store.GetStats(r.Context(), startTime, endTime)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, stats)
}

// parseFilter builds a SearchFilter from query parameters. Unparseable
// values are dropped rather than rejected; the filter narrows, never errors.
func (h *Handlers) parseFilter(r *http.Request) SearchFilter {
	query := r.URL.Query()
	filter := SearchFilter{
		Username:     query.Get("username"),
		ResourceType: ResourceType(query.Get("resource_type")),
		ResourceID:   query.Get("resource_id"),
		ResourceName: query.Get("resource_name"),
		IPAddress:    query.Get("ip_address"),
		Method:       query.Get("method"),
		Path:         query.Get("path"),
	}

	if t, ok := parseTimeParam(r, "start_time"); ok {
		filter.StartTime = &t
	}
	if t, ok := parseTimeParam(r, "end_time"); ok {
		filter.EndTime = &t
	}

	if userID, err := strconv.ParseInt(query.Get("user_id"), 10, 64); err == nil {
		filter.UserID = &userID
	}
	if orgID, err := strconv.ParseInt(query.Get("organization_id"), 10, 64); err == nil {
		filter.OrganizationID = &orgID
	}

	for _, raw := range strings.Split(query.Get("event_types"), ",") {
		if et := strings.TrimSpace(raw); et != "" {
			filter.EventTypes = append(filter.EventTypes, EventType(et))
		}
	}

	if statusStr := query.Get("status"); statusStr != "" {
		status := EventStatus(statusStr)
		filter.Status = &status
	}

	filter.Limit = defaultSearchLimit
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 {
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	if sortBy := query.Get("sort_by"); sortableColumns[sortBy] {
		filter.SortBy = sortBy
	}
	filter.SortOrder = "desc"
	if query.Get("sort_order") == "asc" {
		filter.SortOrder = "asc"
	}

	return filter
}

func parseTimeParam(r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
