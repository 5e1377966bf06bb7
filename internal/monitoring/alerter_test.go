package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metalsense/internal/config"
	"github.com/sells-group/metalsense/internal/resilience"
)

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		UnsafeRateThreshold:  0.25,
		FailureRateThreshold: 0.10,
	}
}

// fastAlerter shortens webhook retry backoff.
func fastAlerter(cfg config.MonitoringConfig) *Alerter {
	a := NewAlerter(cfg)
	a.policy.InitialBackoff = time.Millisecond
	a.policy.MaxBackoff = 5 * time.Millisecond
	return a
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	snap := &MetricsSnapshot{
		Assessed:        40,
		Unsafe:          4,
		UnsafeRate:      0.1,
		SamplesComplete: 40,
		SamplesFailed:   1,
		FailureRate:     1.0 / 41.0,
		MaxHPI:          180,
		LookbackHours:   24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_UnsafeRate(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	snap := &MetricsSnapshot{
		Assessed:      20,
		Unsafe:        8,
		Hazardous:     8,
		UnsafeRate:    0.4,
		MaxHPI:        320,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertUnsafeRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Equal(t, 8, alerts[0].Details["unsafe"])
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	snap := &MetricsSnapshot{
		SamplesComplete: 6,
		SamplesFailed:   4,
		FailureRate:     0.4,
		LookbackHours:   12,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailureRate, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "4 failed / 10 finished in last 12h")
}

func TestAlerter_Evaluate_ExtremeHPI(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	// One sample is too few for a rate alert but the peak still fires.
	snap := &MetricsSnapshot{
		Assessed:      1,
		Unsafe:        1,
		UnsafeRate:    1,
		MaxHPI:        3010,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertExtremeHPI, alerts[0].Type)
	assert.Equal(t, "critical", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "3010.0")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	snap := &MetricsSnapshot{
		Assessed:        10,
		Unsafe:          5,
		UnsafeRate:      0.5,
		SamplesComplete: 10,
		SamplesFailed:   10,
		FailureRate:     0.5,
		MaxHPI:          1000,
		LookbackHours:   24,
	}

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertUnsafeRate])
	assert.True(t, types[AlertFailureRate])
	assert.True(t, types[AlertExtremeHPI])
}

func TestAlerter_Evaluate_MinimumSampleRequired(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	// Only 3 outcomes of each kind, below the minimum for rate alerts.
	snap := &MetricsSnapshot{
		Assessed:        3,
		Unsafe:          3,
		UnsafeRate:      1,
		SamplesComplete: 1,
		SamplesFailed:   2,
		FailureRate:     0.666,
		MaxHPI:          450,
		LookbackHours:   24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		assert.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := fastAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	alerts := []Alert{
		{Type: AlertUnsafeRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertExtremeHPI, Severity: "critical", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: ""})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertUnsafeRate, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := fastAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertUnsafeRate, Message: "test"}})
	assert.Equal(t, 0, sent)
	// 500 is not retried.
	assert.Equal(t, int32(1), calls.Load())
}

func TestAlerter_SendAlerts_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	a := fastAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate, Message: "test"}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAlerter_SendAlerts_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	a := fastAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	alerts := make([]Alert, 5)
	for i := range alerts {
		alerts[i] = Alert{Type: AlertUnsafeRate, Message: "test"}
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 0, sent)
	// The breaker opens after three failures and drops the rest.
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, resilience.Open, a.breaker.State())
}
