package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formhive/formhive/pkg/async"
)

// EventType identifies what happened to a form or its permissions.
type EventType string

const (
	EventFormCreated       EventType = "form.created"
	EventFormUpdated       EventType = "form.updated"
	EventFormDeleted       EventType = "form.deleted"
	EventFormShared        EventType = "form.shared"
	EventPermissionGranted EventType = "permission.granted"
	EventPermissionRevoked EventType = "permission.revoked"
)

// Event is the payload delivered to subscribers.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Webhook is a subscriber endpoint with its event selection.
type Webhook struct {
	ID          string      `json:"id"`
	URL         string      `json:"url"`
	Events      []EventType `json:"events"`
	Secret      string      `json:"secret,omitempty"`
	Format      string      `json:"format,omitempty"`
	Active      bool        `json:"active"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// subscribed reports whether the webhook wants this event type.
func (w *Webhook) subscribed(eventType EventType) bool {
	for _, et := range w.Events {
		if et == eventType {
			return true
		}
	}
	return false
}

// WebhookManager owns the webhook registry and the delivery pipeline:
// dispatch, per-webhook rate limiting, delivery logging, and retries.
type WebhookManager struct {
	mu            sync.RWMutex
	webhooks      map[string]*Webhook
	client        *http.Client
	deliveryStore *DeliveryLogStore
	retryWorker   *RetryWorker
	rateLimiter   *RateLimiter
}

// NewWebhookManager creates a manager with delivery logging and a
// 100-per-minute rate limit per webhook.
func NewWebhookManager() *WebhookManager {
	deliveryStore := NewDeliveryLogStore(1000)

	manager := &WebhookManager{
		webhooks:      make(map[string]*Webhook),
		client:        &http.Client{Timeout: 10 * time.Second},
		deliveryStore: deliveryStore,
		rateLimiter:   NewRateLimiter(100, time.Minute),
	}
	manager.retryWorker = NewRetryWorker(manager, deliveryStore, NewRetryPolicy(DefaultRetryConfig()))
	return manager
}

// StartRetryWorker begins sweeping for due redeliveries every 30 seconds.
func (wm *WebhookManager) StartRetryWorker(ctx context.Context) {
	wm.retryWorker.Start(ctx, 30*time.Second)
}

// StopRetryWorker stops the retry sweep.
func (wm *WebhookManager) StopRetryWorker() {
	wm.retryWorker.Stop()
}

// GetDeliveryLogs returns a webhook's delivery history, newest first.
func (wm *WebhookManager) GetDeliveryLogs(webhookID string, limit int) []*DeliveryLog {
	return wm.deliveryStore.GetByWebhook(webhookID, limit)
}

// GetDeliveryStats returns a webhook's aggregate delivery outcomes.
func (wm *WebhookManager) GetDeliveryStats(webhookID string) DeliveryStats {
	return wm.deliveryStore.GetStats(webhookID)
}

// RegisterWebhook validates and stores a new webhook, assigning its ID.
func (wm *WebhookManager) RegisterWebhook(webhook *Webhook) error {
	if webhook.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if len(webhook.Events) == 0 {
		return fmt.Errorf("at least one event type is required")
	}
	if !validFormat(webhook.Format) {
		return fmt.Errorf("unknown payload format: %s", webhook.Format)
	}

	webhook.ID = newID()
	webhook.Active = true
	webhook.CreatedAt = time.Now()
	webhook.UpdatedAt = webhook.CreatedAt

	wm.mu.Lock()
	wm.webhooks[webhook.ID] = webhook
	wm.mu.Unlock()
	return nil
}

// UnregisterWebhook removes a webhook.
func (wm *WebhookManager) UnregisterWebhook(id string) error {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	if _, exists := wm.webhooks[id]; !exists {
		return fmt.Errorf("webhook not found")
	}
	delete(wm.webhooks, id)
	return nil
}

// UpdateWebhook applies the non-zero fields of updates to a webhook.
func (wm *WebhookManager) UpdateWebhook(id string, updates *Webhook) error {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	webhook, exists := wm.webhooks[id]
	if !exists {
		return fmt.Errorf("webhook not found")
	}

	if updates.URL != "" {
		webhook.URL = updates.URL
	}
	if len(updates.Events) > 0 {
		webhook.Events = updates.Events
	}
	if updates.Secret != "" {
		webhook.Secret = updates.Secret
	}
	if updates.Format != "" {
		if !validFormat(updates.Format) {
			return fmt.Errorf("unknown payload format: %s", updates.Format)
		}
		webhook.Format = updates.Format
	}
	webhook.UpdatedAt = time.Now()
	return nil
}

// GetWebhook returns a webhook by ID.
func (wm *WebhookManager) GetWebhook(id string) (*Webhook, error) {
	wm.mu.RLock()
	defer wm.mu.RUnlock()

	webhook, exists := wm.webhooks[id]
	if !exists {
		return nil, fmt.Errorf("webhook not found")
	}
	return webhook, nil
}

// ListWebhooks returns every registered webhook.
func (wm *WebhookManager) ListWebhooks() []*Webhook {
	wm.mu.RLock()
	defer wm.mu.RUnlock()

	webhooks := make([]*Webhook, 0, len(wm.webhooks))
	for _, webhook := range wm.webhooks {
		webhooks = append(webhooks, webhook)
	}
	return webhooks
}

// ActivateWebhook resumes deliveries to a webhook.
func (wm *WebhookManager) ActivateWebhook(id string) error {
	return wm.setActive(id, true)
}

// DeactivateWebhook pauses deliveries without losing the registration.
func (wm *WebhookManager) DeactivateWebhook(id string) error {
	return wm.setActive(id, false)
}

func (wm *WebhookManager) setActive(id string, active bool) error {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	webhook, exists := wm.webhooks[id]
	if !exists {
		return fmt.Errorf("webhook not found")
	}
	webhook.Active = active
	webhook.UpdatedAt = time.Now()
	return nil
}

// Dispatch fans the event out to every active, subscribed webhook.
// Deliveries run in the background; a panicking subscriber must never
// take the dispatching request down with it.
func (wm *WebhookManager) Dispatch(ctx context.Context, event *Event) error {
	event.ID = newID()
	event.Timestamp = time.Now()

	wm.mu.RLock()
	var targets []*Webhook
	for _, webhook := range wm.webhooks {
		if webhook.Active && webhook.subscribed(event.Type) {
			targets = append(targets, webhook)
		}
	}
	wm.mu.RUnlock()

	for _, webhook := range targets {
		log := &DeliveryLog{
			ID:        newID(),
			WebhookID: webhook.ID,
			EventID:   event.ID,
			EventType: event.Type,
			URL:       webhook.URL,
			Status:    DeliveryStatusPending,
			CreatedAt: time.Now(),
		}
		wm.deliveryStore.Add(log)

		wh := webhook
		async.SafeGoNoError(ctx, 30*time.Second, "webhook-delivery", func(ctx context.Context) {
			wm.deliverAndRecord(ctx, wh, event, log)
		})
	}

	return nil
}

// deliverAndRecord attempts one delivery and records the outcome,
// scheduling a retry when the attempt fails but attempts remain.
func (wm *WebhookManager) deliverAndRecord(ctx context.Context, webhook *Webhook, event *Event, log *DeliveryLog) {
	log.Attempts++
	start := time.Now()

	err := wm.deliver(ctx, webhook, event, log)
	log.Duration = time.Since(start)

	policy := wm.retryWorker.retryPolicy
	switch {
	case err == nil:
		log.Status = DeliveryStatusSuccess
		now := time.Now()
		log.CompletedAt = &now
	case policy.ShouldRetry(log.Attempts, err):
		log.Status = DeliveryStatusRetrying
		next := policy.NextRetryTime(log.Attempts)
		log.NextRetryAt = &next
		log.ErrorMessage = err.Error()
	default:
		log.Status = DeliveryStatusFailed
		log.ErrorMessage = err.Error()
		now := time.Now()
		log.CompletedAt = &now
	}

	wm.deliveryStore.Update(log)
}

// deliver posts the event to the webhook, recording request headers and
// response status on the delivery log.
func (wm *WebhookManager) deliver(ctx context.Context, webhook *Webhook, event *Event, log *DeliveryLog) error {
	if !wm.rateLimiter.Allow(webhook.ID) {
		return fmt.Errorf("rate limit exceeded for webhook %s", webhook.ID)
	}

	payload, err := encodePayload(webhook, event)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Formhive-Event", string(event.Type))
	req.Header.Set("X-Formhive-Event-ID", event.ID)
	req.Header.Set("X-Formhive-Delivery", time.Now().Format(time.RFC3339))
	if webhook.Secret != "" {
		req.Header.Set("X-Formhive-Signature", generateSignature(payload, webhook.Secret))
	}

	if log != nil {
		log.RequestHeaders = make(map[string]string, len(req.Header))
		for key, values := range req.Header {
			if len(values) > 0 {
				log.RequestHeaders[key] = values[0]
			}
		}
	}

	resp, err := wm.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if log != nil {
		log.StatusCode = resp.StatusCode
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}

// redeliver is the retry worker's entry point into the delivery path.
func (wm *WebhookManager) redeliver(ctx context.Context, webhook *Webhook, event *Event, log *DeliveryLog) error {
	return wm.deliver(ctx, webhook, event, log)
}

// VerifySignature checks a received payload against its signature header.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// generateSignature computes the hex HMAC-SHA256 of the payload, in the
// sha256=<hex> form carried by X-Formhive-Signature.
func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newID() string {
	return uuid.NewString()
}
