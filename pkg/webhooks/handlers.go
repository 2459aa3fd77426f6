package webhooks

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/formhive/formhive/pkg/httputil"
)

const defaultDeliveryLimit = 50

// WebhookHandlers exposes webhook subscription management over HTTP.
type WebhookHandlers struct {
	manager *WebhookManager
}

// NewWebhookHandlers creates handlers backed by the given manager.
func NewWebhookHandlers(manager *WebhookManager) *WebhookHandlers {
	return &WebhookHandlers{manager: manager}
}

// RegisterRoutes registers the webhook management routes.
func (h *WebhookHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks", h.createWebhook).Methods("POST")
	router.HandleFunc("/webhooks", h.listWebhooks).Methods("GET")
	router.HandleFunc("/webhooks/{id}", h.getWebhook).Methods("GET")
	router.HandleFunc("/webhooks/{id}", h.updateWebhook).Methods("PUT")
	router.HandleFunc("/webhooks/{id}", h.deleteWebhook).Methods("DELETE")
	router.HandleFunc("/webhooks/{id}/activate", h.activateWebhook).Methods("POST")
	router.HandleFunc("/webhooks/{id}/deactivate", h.deactivateWebhook).Methods("POST")
	router.HandleFunc("/webhooks/{id}/deliveries", h.listDeliveries).Methods("GET")
	router.HandleFunc("/webhooks/{id}/stats", h.getDeliveryStats).Methods("GET")
}

func (h *WebhookHandlers) createWebhook(w http.ResponseWriter, r *http.Request) {
	var webhook Webhook
	if err := json.NewDecoder(r.Body).Decode(&webhook); err != nil {
		httputil.WriteValidationError(w, "invalid webhook payload: "+err.Error())
		return
	}

	if err := h.manager.RegisterWebhook(&webhook); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	httputil.WriteCreated(w, webhook)
}

func (h *WebhookHandlers) listWebhooks(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.manager.ListWebhooks())
}

func (h *WebhookHandlers) getWebhook(w http.ResponseWriter, r *http.Request) {
	webhook, err := h.manager.GetWebhook(mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}
	httputil.WriteSuccess(w, webhook)
}

func (h *WebhookHandlers) updateWebhook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var updates Webhook
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		httputil.WriteValidationError(w, "invalid webhook payload: "+err.Error())
		return
	}

	if err := h.manager.UpdateWebhook(id, &updates); err != nil {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}

	webhook, _ := h.manager.GetWebhook(id)
	httputil.WriteSuccess(w, webhook)
}

func (h *WebhookHandlers) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.UnregisterWebhook(mux.Vars(r)["id"]); err != nil {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}
	httputil.WriteNoContent(w)
}

func (h *WebhookHandlers) activateWebhook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.manager.ActivateWebhook(id); err != nil {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}
	webhook, _ := h.manager.GetWebhook(id)
	httputil.WriteSuccess(w, webhook)
}

func (h *WebhookHandlers) deactivateWebhook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.manager.DeactivateWebhook(id); err != nil {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}
	webhook, _ := h.manager.GetWebhook(id)
	httputil.WriteSuccess(w, webhook)
}

// listDeliveries returns a webhook's recent delivery attempts, newest
// first. The window is bounded by the in-memory delivery store.
func (h *WebhookHandlers) listDeliveries(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.manager.GetWebhook(id); err != nil {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}

	limit := defaultDeliveryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteValidationError(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	deliveries := h.manager.GetDeliveryLogs(id, limit)
	httputil.WriteSuccess(w, map[string]interface{}{
		"webhook_id": id,
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}

// getDeliveryStats returns aggregate delivery outcomes for a webhook.
func (h *WebhookHandlers) getDeliveryStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.manager.GetWebhook(id); err != nil {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}
	httputil.WriteSuccess(w, h.manager.GetDeliveryStats(id))
}
