package webhooks

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/formhive/formhive/pkg/observability"
)

// RetryConfig bounds how long a failing subscriber endpoint is retried.
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig retries five times, doubling from one second up to a
// five-minute ceiling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      1 * time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy computes exponential backoff schedules for failed deliveries.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy builds a policy, replacing non-positive or degenerate
// config values with the defaults.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 1 * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Minute
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = 2.0
	}

	return &RetryPolicy{config: config}
}

// ShouldRetry reports whether a delivery that has already been attempted
// the given number of times deserves another attempt.
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil {
		return false
	}
	return attempts < p.config.MaxAttempts
}

// NextRetryDelay returns the backoff before the next attempt, capped at
// the configured maximum.
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}

	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

// NextRetryTime returns the wall-clock time of the next attempt.
func (p *RetryPolicy) NextRetryTime(attempts int) time.Time {
	return time.Now().Add(p.NextRetryDelay(attempts))
}

// RetryWorker periodically sweeps the delivery log for deliveries whose
// retry time has come and re-sends them through the manager.
type RetryWorker struct {
	manager       *WebhookManager
	deliveryStore *DeliveryLogStore
	retryPolicy   *RetryPolicy
	logger        *observability.Logger
	stopCh        chan struct{}
	ticker        *time.Ticker
}

// NewRetryWorker creates a worker bound to the manager's delivery store.
func NewRetryWorker(manager *WebhookManager, deliveryStore *DeliveryLogStore, retryPolicy *RetryPolicy) *RetryWorker {
	return &RetryWorker{
		manager:       manager,
		deliveryStore: deliveryStore,
		retryPolicy:   retryPolicy,
		logger:        observability.NewLogger("webhook-retry"),
		stopCh:        make(chan struct{}),
	}
}

// Start runs the sweep loop in a goroutine until the context is cancelled
// or Stop is called.
func (w *RetryWorker) Start(ctx context.Context, checkInterval time.Duration) {
	w.ticker = time.NewTicker(checkInterval)

	go func() {
		// A panic in a sweep must not take the process down.
		defer func() {
			if r := recover(); r != nil {
				w.logger.WithField("panic", fmt.Sprint(r)).Error("retry worker panicked")
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-w.ticker.C:
				w.processRetries(ctx)
			}
		}
	}()
}

// Stop terminates the sweep loop.
func (w *RetryWorker) Stop() {
	if w.ticker != nil {
		w.ticker.Stop()
	}
	close(w.stopCh)
}

// processRetries re-sends every delivery whose backoff has elapsed. A
// delivery whose webhook has since been removed or deactivated is closed
// out as failed rather than retried forever.
func (w *RetryWorker) processRetries(ctx context.Context) {
	for _, log := range w.deliveryStore.GetPendingRetries() {
		webhook, err := w.manager.GetWebhook(log.WebhookID)
		if err != nil {
			w.closeOut(log, fmt.Sprintf("webhook not found: %v", err))
			continue
		}
		if !webhook.Active {
			w.closeOut(log, "webhook is inactive")
			continue
		}
		w.retryDelivery(ctx, webhook, log)
	}
}

// closeOut marks a delivery permanently failed.
func (w *RetryWorker) closeOut(log *DeliveryLog, reason string) {
	log.Status = DeliveryStatusFailed
	log.ErrorMessage = reason
	now := time.Now()
	log.CompletedAt = &now
	w.deliveryStore.Update(log)

	w.logger.WithFields(map[string]interface{}{
		"webhook_id":  log.WebhookID,
		"delivery_id": log.ID,
		"reason":      reason,
	}).Warn("abandoning webhook delivery")
}

// retryDelivery re-sends one delivery and reschedules or closes it out
// depending on the outcome.
func (w *RetryWorker) retryDelivery(ctx context.Context, webhook *Webhook, log *DeliveryLog) {
	log.Attempts++

	// The original payload is not retained; the subscriber gets the event
	// envelope and is expected to fetch current state through the API.
	event := &Event{
		ID:        log.EventID,
		Type:      log.EventType,
		Timestamp: log.CreatedAt,
		Data:      make(map[string]interface{}),
	}

	startTime := time.Now()
	err := w.manager.redeliver(ctx, webhook, event, log)
	log.Duration = time.Since(startTime)

	switch {
	case err == nil:
		log.Status = DeliveryStatusSuccess
		log.ErrorMessage = ""
		now := time.Now()
		log.CompletedAt = &now
		w.logger.WithFields(map[string]interface{}{
			"webhook_id":  webhook.ID,
			"delivery_id": log.ID,
			"attempts":    log.Attempts,
		}).Info("webhook delivery recovered")
	case w.retryPolicy.ShouldRetry(log.Attempts, err):
		log.Status = DeliveryStatusRetrying
		nextRetry := w.retryPolicy.NextRetryTime(log.Attempts)
		log.NextRetryAt = &nextRetry
		log.ErrorMessage = err.Error()
	default:
		log.Status = DeliveryStatusFailed
		log.ErrorMessage = fmt.Sprintf("max retries exceeded: %v", err)
		now := time.Now()
		log.CompletedAt = &now
		w.logger.WithError(err).WithFields(map[string]interface{}{
			"webhook_id":  webhook.ID,
			"delivery_id": log.ID,
			"attempts":    log.Attempts,
		}).Error("webhook delivery exhausted retries")
	}

	w.deliveryStore.Update(log)
}
