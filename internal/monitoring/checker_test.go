package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metalsense/internal/config"
	"github.com/sells-group/metalsense/internal/store"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	src := &fakeStats{stats: &store.Stats{}}
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:    1,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	checker := NewChecker(NewCollector(src), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return checker.Last() != nil }, 2*time.Second, 10*time.Millisecond,
		"first check runs without waiting for a tick")
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	collector := NewCollector(&fakeStats{stats: &store.Stats{}})
	checker := NewChecker(collector, NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	// Already cancelled: returns without checking.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
	assert.Nil(t, checker.Last())
}

func TestChecker_CheckSendsAlertsOnce(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = ts.URL
	cfg.LookbackWindowHours = 24

	src := &fakeStats{stats: &store.Stats{Assessed: 10, Unsafe: 6, MaxHPI: 1500}}
	checker := NewChecker(NewCollector(src), fastAlerter(cfg), cfg)

	alerts := checker.Check(context.Background())
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertUnsafeRate, alerts[0].Type)
	assert.Equal(t, AlertExtremeHPI, alerts[1].Type)
	assert.Equal(t, int32(2), received.Load())

	// Same conditions: nothing new is sent.
	assert.Empty(t, checker.Check(context.Background()))
	assert.Equal(t, int32(2), received.Load())

	// The peak clears, then returns.
	src.stats = &store.Stats{Assessed: 10, Unsafe: 6, MaxHPI: 300}
	assert.Empty(t, checker.Check(context.Background()))

	src.stats = &store.Stats{Assessed: 10, Unsafe: 6, MaxHPI: 2000}
	alerts = checker.Check(context.Background())
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertExtremeHPI, alerts[0].Type)
	assert.Equal(t, int32(3), received.Load())

	require.NotNil(t, checker.Last())
	assert.InDelta(t, 2000, checker.Last().MaxHPI, 1e-9)
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := testMonitoringConfig()
	checker := NewChecker(NewCollector(&fakeStats{err: assert.AnError}), NewAlerter(cfg), cfg)

	assert.Nil(t, checker.Check(context.Background()))
	assert.Nil(t, checker.Last())
}
