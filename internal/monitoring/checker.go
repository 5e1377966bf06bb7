package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/metalsense/internal/config"
)

// Checker evaluates assessment metrics on a fixed interval. An alert is
// delivered when its condition starts firing and again only after it has
// cleared for at least one check.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	log       *zap.Logger

	mu     sync.Mutex
	firing map[AlertType]bool
	last   *MetricsSnapshot
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
		firing:    make(map[AlertType]bool),
	}
}

// Run checks once immediately and then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	c.log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
		zap.Bool("webhook", c.cfg.WebhookURL != ""),
	)

	if ctx.Err() == nil {
		c.Check(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects a snapshot and sends the alerts that were not already
// firing on the previous check. It returns the alerts it sent or tried to send.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		c.log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil
	}

	fired := c.alerter.Evaluate(snap)
	fresh := c.transition(snap, fired)
	if len(fresh) == 0 {
		c.log.Debug("monitoring: no new alerts",
			zap.Int("assessed", snap.Assessed),
			zap.Float64("unsafe_rate", snap.UnsafeRate),
			zap.Int("still_firing", len(fired)),
		)
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	c.log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return fresh
}

// Last returns the most recent snapshot, or nil before the first check.
func (c *Checker) Last() *MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// transition records which alert types fire now and returns the ones that
// were quiet on the previous check.
func (c *Checker) transition(snap *MetricsSnapshot, fired []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = snap
	now := make(map[AlertType]bool, len(fired))
	var fresh []Alert
	for _, a := range fired {
		now[a.Type] = true
		if !c.firing[a.Type] {
			fresh = append(fresh, a)
		}
	}
	for t := range c.firing {
		if !now[t] {
			c.log.Info("monitoring: alert resolved", zap.String("type", string(t)))
		}
	}
	c.firing = now
	return fresh
}
