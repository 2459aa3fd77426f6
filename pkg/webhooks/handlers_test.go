package webhooks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebhookRouter(manager *WebhookManager) *mux.Router {
	router := mux.NewRouter()
	NewWebhookHandlers(manager).RegisterRoutes(router)
	return router
}

func registerTestWebhook(t *testing.T, manager *WebhookManager) *Webhook {
	t.Helper()
	webhook := &Webhook{URL: "https://example.com/hook", Events: []EventType{EventFormShared}}
	require.NoError(t, manager.RegisterWebhook(webhook))
	return webhook
}

func TestWebhookHandlers_CreateWebhook(t *testing.T) {
	manager := NewWebhookManager()
	router := newWebhookRouter(manager)

	t.Run("created", func(t *testing.T) {
		body := `{"url":"https://example.com/hook","events":["form.shared"]}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/webhooks", strings.NewReader(body)))

		assert.Equal(t, http.StatusCreated, rec.Code)
		var created Webhook
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
		assert.NotEmpty(t, created.ID)
		assert.True(t, created.Active)
	})

	t.Run("missing events rejected", func(t *testing.T) {
		body := `{"url":"https://example.com/hook"}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/webhooks", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/webhooks", strings.NewReader("{not json")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWebhookHandlers_GetAndDelete(t *testing.T) {
	manager := NewWebhookManager()
	router := newWebhookRouter(manager)
	webhook := registerTestWebhook(t, manager)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/webhooks/"+webhook.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/webhooks/"+webhook.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/webhooks/"+webhook.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookHandlers_ActivateDeactivate(t *testing.T) {
	manager := NewWebhookManager()
	router := newWebhookRouter(manager)
	webhook := registerTestWebhook(t, manager)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/webhooks/"+webhook.ID+"/deactivate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var returned Webhook
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&returned))
	assert.False(t, returned.Active)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/webhooks/"+webhook.ID+"/activate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&returned))
	assert.True(t, returned.Active)
}

func TestWebhookHandlers_ListDeliveries(t *testing.T) {
	manager := NewWebhookManager()
	router := newWebhookRouter(manager)
	webhook := registerTestWebhook(t, manager)

	now := time.Now()
	for i, status := range []DeliveryStatus{DeliveryStatusSuccess, DeliveryStatusFailed, DeliveryStatusSuccess} {
		manager.deliveryStore.Add(&DeliveryLog{
			ID:        string(rune('a' + i)),
			WebhookID: webhook.ID,
			EventID:   "ev1",
			EventType: EventFormShared,
			Status:    status,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		})
	}

	t.Run("lists newest first", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/webhooks/"+webhook.ID+"/deliveries", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var response struct {
			WebhookID  string        `json:"webhook_id"`
			Deliveries []DeliveryLog `json:"deliveries"`
			Count      int           `json:"count"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, webhook.ID, response.WebhookID)
		assert.Equal(t, 3, response.Count)
		require.Len(t, response.Deliveries, 3)
		assert.Equal(t, "c", response.Deliveries[0].ID)
	})

	t.Run("limit applies", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/webhooks/"+webhook.ID+"/deliveries?limit=1", nil))

		var response struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, 1, response.Count)
	})

	t.Run("bad limit rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/webhooks/"+webhook.ID+"/deliveries?limit=-1", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown webhook", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/webhooks/nope/deliveries", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestWebhookHandlers_GetDeliveryStats(t *testing.T) {
	manager := NewWebhookManager()
	router := newWebhookRouter(manager)
	webhook := registerTestWebhook(t, manager)

	manager.deliveryStore.Add(&DeliveryLog{
		ID: "d1", WebhookID: webhook.ID, Status: DeliveryStatusSuccess, CreatedAt: time.Now()})
	manager.deliveryStore.Add(&DeliveryLog{
		ID: "d2", WebhookID: webhook.ID, Status: DeliveryStatusFailed, CreatedAt: time.Now()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/webhooks/"+webhook.ID+"/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var stats DeliveryStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Successful)
	assert.Equal(t, 0.5, stats.SuccessRate)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/webhooks/nope/stats", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
