package services

import (
	"context"
	"time"

	"camgate/internal/core/ports"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// StatusReporter periodically publishes the camera health snapshot to the
// signaling server. Publishing is additionally rate limited so that explicit
// Publish calls (after reconnect, on demand) cannot flood the link.
type StatusReporter struct {
	sender   ports.SignalSender
	sampler  ports.HealthSampler
	interval time.Duration
	limiter  *rate.Limiter
	log      *zap.SugaredLogger
}

func NewStatusReporter(sender ports.SignalSender, sampler ports.HealthSampler, interval time.Duration, log *zap.SugaredLogger) *StatusReporter {
	// At most one unsolicited report per second regardless of callers.
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)
	return &StatusReporter{
		sender:   sender,
		sampler:  sampler,
		interval: interval,
		limiter:  limiter,
		log:      log,
	}
}

// Run publishes on the configured interval until the context ends.
// Disabled when the interval is zero.
func (r *StatusReporter) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Publish(ctx)
		}
	}
}

// Publish samples health and sends one report. Silently skipped when the
// rate limit is exceeded.
func (r *StatusReporter) Publish(ctx context.Context) {
	if !r.limiter.Allow() {
		r.log.Debugw("status report suppressed by rate limit")
		return
	}

	report, err := r.sampler.Sample(ctx)
	if err != nil {
		r.log.Warnw("health sampling failed", "error", err)
		return
	}

	if err := r.sender.Send(report); err != nil {
		r.log.Warnw("status report send failed", "error", err)
	}
}
