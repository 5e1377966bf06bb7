package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/metalsense/internal/config"
	"github.com/sells-group/metalsense/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertUnsafeRate  AlertType = "unsafe_rate"
	AlertFailureRate AlertType = "failure_rate"
	AlertExtremeHPI  AlertType = "extreme_hpi"
)

const (
	// minSample is the fewest outcomes a rate alert is computed over.
	minSample = 5

	// extremeHPI is ten times the hazardous cutoff.
	extremeHPI = 1000.0
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg     config.MonitoringConfig
	client  *http.Client
	breaker *resilience.Breaker
	policy  resilience.Policy
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	b := resilience.NewBreaker(3, time.Minute)
	b.OnChange = func(from, to resilience.BreakerState) {
		zap.L().Warn("monitoring: webhook breaker state changed",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	p := resilience.DefaultPolicy()
	p.InitialBackoff = 500 * time.Millisecond
	p.OnRetry = resilience.LogRetry("monitoring.webhook")

	return &Alerter{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: b,
		policy:  p,
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Share of unsafe water among recent assessments.
	if snap.Assessed >= minSample && snap.UnsafeRate > a.cfg.UnsafeRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertUnsafeRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Unsafe sample rate %.1f%% exceeds threshold %.1f%% (%d unsafe / %d assessed in last %dh)",
				snap.UnsafeRate*100, a.cfg.UnsafeRateThreshold*100,
				snap.Unsafe, snap.Assessed, snap.LookbackHours,
			),
			Details: map[string]any{
				"unsafe_rate": snap.UnsafeRate,
				"threshold":   a.cfg.UnsafeRateThreshold,
				"unsafe":      snap.Unsafe,
				"assessed":    snap.Assessed,
				"hazardous":   snap.Hazardous,
			},
			Timestamp: now,
		})
	}

	// Assessments that could not be completed.
	finished := snap.SamplesComplete + snap.SamplesFailed
	if finished >= minSample && snap.FailureRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Assessment failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailureRate*100, a.cfg.FailureRateThreshold*100,
				snap.SamplesFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailureRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.SamplesFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	// A single extremely contaminated sample is reported regardless of rates.
	if snap.MaxHPI >= extremeHPI {
		alerts = append(alerts, Alert{
			Type:     AlertExtremeHPI,
			Severity: "critical",
			Message: fmt.Sprintf(
				"Peak HPI %.1f in last %dh is at least %.0f",
				snap.MaxHPI, snap.LookbackHours, extremeHPI,
			),
			Details: map[string]any{
				"max_hpi":  snap.MaxHPI,
				"mean_hpi": snap.MeanHPI,
				"limit":    extremeHPI,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := a.breaker.Do(ctx, func(ctx context.Context) error {
			return resilience.Retry(ctx, a.policy, func(ctx context.Context) error {
				return a.sendWebhook(ctx, alert)
			})
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL. Failures worth
// retrying come back wrapped by resilience.Transient.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientStatus(resp.StatusCode) {
			return resilience.Transient(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
