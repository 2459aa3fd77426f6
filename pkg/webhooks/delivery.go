package webhooks

import (
	"sort"
	"sync"
	"time"
)

// DeliveryStatus tracks where a delivery attempt stands.
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusFailed   DeliveryStatus = "failed"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
)

// DeliveryLog records one delivery of a sharing or form event to a
// subscriber endpoint, across all of its attempts.
type DeliveryLog struct {
	ID             string            `json:"id"`
	WebhookID      string            `json:"webhook_id"`
	EventID        string            `json:"event_id"`
	EventType      EventType         `json:"event_type"`
	URL            string            `json:"url"`
	Status         DeliveryStatus    `json:"status"`
	StatusCode     int               `json:"status_code,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	Attempts       int               `json:"attempts"`
	NextRetryAt    *time.Time        `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	Duration       time.Duration     `json:"duration,omitempty"`
	RequestHeaders map[string]string `json:"request_headers,omitempty"`
	ResponseBody   string            `json:"response_body,omitempty"`
}

// DeliveryLogStore keeps a bounded in-memory window of delivery logs.
// When the window fills, the oldest tenth is dropped; the store is a
// debugging aid, not a durable record.
type DeliveryLogStore struct {
	mu      sync.RWMutex
	logs    map[string]*DeliveryLog
	maxLogs int
}

// NewDeliveryLogStore creates a store holding at most maxLogs entries
// (1000 when non-positive).
func NewDeliveryLogStore(maxLogs int) *DeliveryLogStore {
	if maxLogs <= 0 {
		maxLogs = 1000
	}
	return &DeliveryLogStore{
		logs:    make(map[string]*DeliveryLog),
		maxLogs: maxLogs,
	}
}

// Add records a new delivery log, evicting old entries when full.
func (s *DeliveryLogStore) Add(log *DeliveryLog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.logs) >= s.maxLogs {
		s.evictOldestLocked()
	}
	s.logs[log.ID] = log
}

// Get returns one delivery log by ID.
func (s *DeliveryLogStore) Get(id string) (*DeliveryLog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.logs[id]
	return log, ok
}

// GetByWebhook returns a webhook's delivery logs, newest first, capped
// at limit when positive.
func (s *DeliveryLogStore) GetByWebhook(webhookID string, limit int) []*DeliveryLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*DeliveryLog
	for _, log := range s.logs {
		if log.WebhookID == webhookID {
			result = append(result, log)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// GetByEvent returns every delivery log for one event, across all
// subscribed webhooks.
func (s *DeliveryLogStore) GetByEvent(eventID string) []*DeliveryLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*DeliveryLog
	for _, log := range s.logs {
		if log.EventID == eventID {
			result = append(result, log)
		}
	}
	return result
}

// Update replaces a delivery log after an attempt.
func (s *DeliveryLogStore) Update(log *DeliveryLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[log.ID] = log
}

// GetPendingRetries returns the deliveries whose retry time has come.
func (s *DeliveryLogStore) GetPendingRetries() []*DeliveryLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var due []*DeliveryLog
	for _, log := range s.logs {
		if log.Status == DeliveryStatusRetrying && log.NextRetryAt != nil && log.NextRetryAt.Before(now) {
			due = append(due, log)
		}
	}
	return due
}

// evictOldestLocked drops the oldest 10% of entries. Caller holds mu.
func (s *DeliveryLogStore) evictOldestLocked() {
	entries := make([]*DeliveryLog, 0, len(s.logs))
	for _, log := range s.logs {
		entries = append(entries, log)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	evict := len(entries) / 10
	if evict == 0 {
		evict = 1
	}
	for _, log := range entries[:evict] {
		delete(s.logs, log.ID)
	}
}

// DeliveryStats summarizes one webhook's delivery history.
type DeliveryStats struct {
	WebhookID       string        `json:"webhook_id"`
	Total           int           `json:"total"`
	Successful      int           `json:"successful"`
	Failed          int           `json:"failed"`
	Retrying        int           `json:"retrying"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration"`
	TotalDuration   time.Duration `json:"total_duration"`
}

// GetStats aggregates delivery outcomes for one webhook.
func (s *DeliveryLogStore) GetStats(webhookID string) DeliveryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := DeliveryStats{WebhookID: webhookID}
	for _, log := range s.logs {
		if log.WebhookID != webhookID {
			continue
		}
		stats.Total++
		switch log.Status {
		case DeliveryStatusSuccess:
			stats.Successful++
		case DeliveryStatusFailed:
			stats.Failed++
		case DeliveryStatusRetrying:
			stats.Retrying++
		}
		if log.CompletedAt != nil {
			stats.TotalDuration += log.Duration
		}
	}

	if stats.Successful > 0 {
		stats.AverageDuration = stats.TotalDuration / time.Duration(stats.Successful)
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats
}
