// Package ticker drives a runtime's Tick method on a fixed interval.
// Tick itself stays caller-driven so tests can step it manually; this
// is just a convenience for long-running processes such as the demo
// command, a single recurring time.Ticker in place of a per-task timer
// map since there's no persisted task list here.
package ticker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Tickable is anything with a Tick method, satisfied by
// *agentsystem.System[C] for any payload type C.
type Tickable interface {
	Tick(ctx context.Context)
}

// Ticker calls Tick on a target at a fixed interval until stopped.
type Ticker struct {
	interval time.Duration
	target   Tickable
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Ticker that calls target.Tick every interval. It does
// not start running until Start is called. A nil logger is replaced
// with slog.Default.
func New(interval time.Duration, target Tickable, logger *slog.Logger) *Ticker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ticker{interval: interval, target: target, logger: logger}
}

// Start begins the tick loop in a background goroutine. Calling Start
// on an already-running Ticker is a no-op.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	stopCh := t.stopCh
	t.mu.Unlock()

	t.logger.Debug("ticker starting", "interval", t.interval)

	t.wg.Add(1)
	go t.run(ctx, stopCh)
}

func (t *Ticker) run(ctx context.Context, stopCh chan struct{}) {
	defer t.wg.Done()

	tick := time.NewTicker(t.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-tick.C:
			t.target.Tick(ctx)
		}
	}
}

// Stop halts the tick loop and waits for the in-flight Tick call, if
// any, to return. Calling Stop on a non-running Ticker is a no-op.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("ticker stopped")
}
