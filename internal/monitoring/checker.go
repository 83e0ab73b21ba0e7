package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/onboard-cli/internal/config"
)

// Checker runs periodic fleet checks over the mounted sessions. A fleet
// alert is sent once when the failure rate crosses the threshold and again
// only after the rate has dropped back below it.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	firing bool // only touched from the Run goroutine
}

// NewChecker creates a background fleet checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting fleet checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("fleet checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check returns the number of alerts delivered.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap := c.collector.Collect()
	if snap.Sessions == 0 {
		log.Debug("monitoring: no sessions mounted, skipping fleet check")
		c.firing = false
		return 0
	}

	alerts := c.alerter.EvaluateFleet(snap)
	if len(alerts) == 0 {
		if c.firing {
			log.Info("monitoring: fleet failure rate recovered",
				zap.Int("sessions", snap.Sessions),
				zap.Int("failed", snap.Failed),
				zap.Float64("fail_rate", snap.FailRate),
			)
		}
		c.firing = false
		log.Debug("monitoring: fleet healthy",
			zap.Int("sessions", snap.Sessions),
			zap.Int("tracks", snap.Tracks),
			zap.Int("all_complete", snap.AllComplete),
		)
		return 0
	}

	if c.firing {
		log.Debug("monitoring: fleet failure rate still above threshold",
			zap.Int("failed", snap.Failed),
			zap.Float64("fail_rate", snap.FailRate),
		)
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	c.firing = sent > 0
	log.Warn("monitoring: fleet failure rate above threshold",
		zap.Int("sessions", snap.Sessions),
		zap.Int("failed", snap.Failed),
		zap.Float64("fail_rate", snap.FailRate),
		zap.Int("alerts_sent", sent),
	)
	return sent
}
