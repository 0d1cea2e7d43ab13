package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/etherfund-dashboard/internal/config"
	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
)

func testConfig(urls ...string) *config.NotificationConfig {
	return &config.NotificationConfig{
		WebhookURLs:   urls,
		Headers:       map[string]string{"X-Token": "secret"},
		Timeout:       time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}
}

func TestNotifyPostsPayload(t *testing.T) {
	var got WebhookPayload
	var token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get("X-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	manager := metrics.NewManagerWithRegistry(prometheus.NewRegistry())
	sender := NewWebhookSender(testConfig(srv.URL), manager)

	err := sender.Notify(context.Background(), Event{Type: EventUpdatePosted, CampaignID: "3", TxHash: "0xabc", ContentID: "Qm1"})

	require.NoError(t, err)
	assert.Equal(t, "secret", token)
	assert.Equal(t, EventUpdatePosted, got.Event.Type)
	assert.Equal(t, "Qm1", got.Event.ContentID)
	assert.Equal(t, "etherfund-dashboard", got.Source)
	assert.Equal(t, float64(1), testutil.ToFloat64(
		manager.GetPrometheusMetrics().WebhookDeliveriesTotal.WithLabelValues(EventUpdatePosted, "success")))
}

func TestNotifyRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewWebhookSender(testConfig(srv.URL), nil).Notify(context.Background(), Event{Type: EventCampaignCreated, TxHash: "0x1"})

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestNotifyDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewWebhookSender(testConfig(srv.URL), nil).Notify(context.Background(), Event{Type: EventCampaignCreated, TxHash: "0x1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: 401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNotifyTriesEveryWebhook(t *testing.T) {
	var okCalls int32
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&okCalls, 1)
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	err := NewWebhookSender(testConfig(bad.URL, ok.URL), nil).Notify(context.Background(), Event{Type: EventUpdatePosted, TxHash: "0x1"})

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&okCalls))
}

func TestDisabledSender(t *testing.T) {
	sender := NewWebhookSender(testConfig(), nil)
	assert.False(t, sender.Enabled())
	assert.NoError(t, sender.Notify(context.Background(), Event{Type: EventUpdatePosted}))
}

func TestDeliveryBudget(t *testing.T) {
	sender := NewWebhookSender(testConfig("https://a.test", "https://b.test"), nil)
	// three attempts of 1s each plus two capped waits, for each webhook
	assert.Equal(t, 2*(3*time.Second+2*maxRetryInterval), sender.DeliveryBudget())

	assert.Zero(t, NewWebhookSender(testConfig(), nil).DeliveryBudget())
}
