package events

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/violation"
	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/config"
)

func testAlert() violation.Alert {
	return violation.Alert{
		Type:       violation.EventStart,
		Severity:   "HIGH",
		AreaID:     uuid.New(),
		ZoneID:     uuid.New(),
		AreaHa:     1.2,
		Confidence: 0.91,
		Timestamp:  time.Date(2026, 4, 10, 10, 30, 0, 0, time.UTC),
	}
}

func newTestPublisher(t *testing.T, url, secret string, retries int) *WebhookPublisher {
	t.Helper()
	p := NewWebhookPublisher(config.AlertsConfig{
		WebhookURL:     url,
		WebhookSecret:  secret,
		WebhookTimeout: 5 * time.Second,
		WebhookRetries: retries,
	}, zaptest.NewLogger(t))
	p.backoff = time.Millisecond
	return p
}

func TestWebhookPublisher_DeliversSignedPayload(t *testing.T) {
	alert := testAlert()
	secret := "shared-secret"

	var gotSignature string
	var gotPayload WebhookPayload
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = body
		gotSignature = r.Header.Get("X-Signature-SHA256")
		require.NoError(t, json.Unmarshal(body, &gotPayload))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := newTestPublisher(t, srv.URL, secret, 3)
	require.NoError(t, p.Publish(context.Background(), alert))

	assert.Equal(t, "excavation_violation", gotPayload.Kind)
	assert.Equal(t, alert.AreaID, gotPayload.Alert.AreaID)
	assert.Equal(t, "HIGH", gotPayload.Alert.Severity)
	assert.NotEqual(t, uuid.Nil, gotPayload.DeliveryID)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSignature)
}

func TestWebhookPublisher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestPublisher(t, srv.URL, "", 3)
	require.NoError(t, p.Publish(context.Background(), testAlert()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookPublisher_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := newTestPublisher(t, srv.URL, "", 3)
	err := p.Publish(context.Background(), testAlert())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookPublisher_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newTestPublisher(t, srv.URL, "", 3)
	err := p.Publish(context.Background(), testAlert())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookPublisher_NoEndpointIsNoop(t *testing.T) {
	p := newTestPublisher(t, "", "", 3)
	require.NoError(t, p.Publish(context.Background(), testAlert()))
}

func TestFanoutPublisher_AllSinksReceive(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	p := NewFanoutPublisher(zaptest.NewLogger(t), a, b)

	alert := testAlert()
	require.NoError(t, p.Publish(context.Background(), alert))
	require.Len(t, a.alerts, 1)
	require.Len(t, b.alerts, 1)
	assert.Equal(t, alert.AreaID, b.alerts[0].AreaID)
}

func TestFanoutPublisher_OneFailureDoesNotStopOthers(t *testing.T) {
	a := &recordingSink{err: assert.AnError}
	b := &recordingSink{}
	p := NewFanoutPublisher(zaptest.NewLogger(t), a, b)

	err := p.Publish(context.Background(), testAlert())
	require.Error(t, err)
	assert.Len(t, b.alerts, 1)
}
