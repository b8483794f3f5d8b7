package mqtt

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// messageRateLimiter tracks inbound message rates and drops messages
// when the rate exceeds the configured threshold. It uses atomic
// counters for lock-free operation on the hot path, matching the
// teacher's HA-subscription rate limiter — here guarding against a
// misbehaving remote publisher flooding a Subscriber instead of a
// noisy smart-home broker.
type messageRateLimiter struct {
	count    atomic.Int64
	dropped  atomic.Int64
	limit    int64
	interval time.Duration
	logger   *slog.Logger
}

func newMessageRateLimiter(limit int64, interval time.Duration, logger *slog.Logger) *messageRateLimiter {
	return &messageRateLimiter{limit: limit, interval: interval, logger: logger}
}

// start runs the periodic counter reset loop. It blocks until ctx is
// cancelled.
func (r *messageRateLimiter) start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := r.count.Swap(0)
			dropped := r.dropped.Swap(0)
			if dropped > 0 {
				r.logger.Warn("mqtt subscriber: messages dropped due to rate limit",
					"received", count, "dropped", dropped, "interval", r.interval.String(), "limit", r.limit)
			}
		}
	}
}

// allow increments the message counter and returns true if the
// current count is within the limit.
func (r *messageRateLimiter) allow() bool {
	n := r.count.Add(1)
	if n > r.limit {
		r.dropped.Add(1)
		return false
	}
	return true
}
