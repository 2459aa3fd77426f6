// Package webhooks provides event-driven webhook delivery for form and
// sharing events.
//
// # Overview
//
// This package manages webhook registration, delivery, retries, and monitoring
// with automatic retry logic, rate limiting, and HMAC signature verification.
//
// # Webhook Events
//
// form.created, form.updated, form.deleted
// form.shared
// permission.granted, permission.revoked
//
// # Usage Example
//
// Register webhook:
//
//	webhook := &webhooks.Webhook{
//		URL:    "https://api.example.com/webhooks",
//		Events: []webhooks.EventType{webhooks.EventFormCreated, webhooks.EventFormShared},
//		Secret: "webhook-secret",
//	}
//	manager.RegisterWebhook(webhook)
//
// Trigger event:
//
//	event := &webhooks.Event{
//		Type: webhooks.EventFormCreated,
//		Data: map[string]interface{}{
//			"form_id":  form.ID,
//			"title":    form.Title,
//			"actor_id": userID,
//		},
//	}
//	manager.Dispatch(ctx, event)
//
// Verify signature (receiver side):
//
//	sig := r.Header.Get("X-Formhive-Signature")
//	if !webhooks.VerifySignature(body, sig, secret) {
//		return errors.New("invalid signature")
//	}
//
// # Retry Policy
//
// Exponential backoff: 1s, 2s, 4s, 8s, 16s
// Max retries: 5
// Timeout per attempt: 10s
//
// # Related Packages
//
//   - pkg/async: Asynchronous delivery
package webhooks
