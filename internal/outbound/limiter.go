// Package outbound serializes and throttles messages per destination.
//
// Sends to one destination are totally ordered and spaced at least
// MinInterval apart; sends to different destinations never wait on each
// other. Delivery runs in the caller's goroutine, so the caller's
// context.Context (and the request context it carries) stays in scope.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/logger"
	"github.com/keshon/botcore/internal/metrics"
)

// DefaultMinInterval is the spacing between two sends to one destination.
const DefaultMinInterval = 800 * time.Millisecond

// ErrDeliver wraps a failure reported by the delivery primitive.
var ErrDeliver = errors.New("outbound: delivery failed")

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type destination struct {
	gate chan struct{} // capacity 1; holding the token means owning the destination
	last time.Time
}

// Limiter is safe for concurrent use. The zero value is not usable; call
// NewLimiter.
type Limiter struct {
	mu    sync.Mutex
	dests map[string]*destination
	held  atomic.Int64

	interval time.Duration
	clock    Clock
	log      *log.Logger
	metrics  *metrics.Metrics
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMinInterval overrides DefaultMinInterval. Negative values are
// treated as zero.
func WithMinInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d < 0 {
			d = 0
		}
		l.interval = d
	}
}

func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

func WithLogger(lg *log.Logger) Option {
	return func(l *Limiter) { l.log = lg }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// NewLimiter creates a Limiter.
func NewLimiter(opts ...Option) *Limiter {
	l := &Limiter{
		dests:    make(map[string]*destination),
		interval: DefaultMinInterval,
		clock:    realClock{},
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MinInterval returns the configured spacing.
func (l *Limiter) MinInterval() time.Duration {
	return l.interval
}

func (l *Limiter) get(dest string) *destination {
	l.mu.Lock()
	defer l.mu.Unlock()

	d, ok := l.dests[dest]
	if !ok {
		d = &destination{gate: make(chan struct{}, 1)}
		l.dests[dest] = d
	}
	return d
}

// Send delivers msg to dest through deliver once the destination is free
// and the spacing floor has elapsed. A delivery failure is logged and
// returned wrapped in ErrDeliver; the destination's last-send time is still
// advanced so the next message keeps its spacing. If ctx ends before
// delivery starts, nothing is sent and ctx.Err() is returned.
func (l *Limiter) Send(ctx context.Context, dest string, msg event.Message, deliver event.Deliverer) error {
	start := l.clock.Now()
	d := l.get(dest)

	select {
	case d.gate <- struct{}{}:
	case <-ctx.Done():
		l.metrics.ObserveSend("cancelled", l.clock.Now().Sub(start))
		return ctx.Err()
	}
	l.metrics.SetInflight(int(l.held.Add(1)))
	defer func() {
		l.metrics.SetInflight(int(l.held.Add(-1)))
		<-d.gate
	}()

	// d.last is only touched while holding the gate.
	if !d.last.IsZero() {
		if wait := l.interval - l.clock.Now().Sub(d.last); wait > 0 {
			if err := l.clock.Sleep(ctx, wait); err != nil {
				l.metrics.ObserveSend("cancelled", l.clock.Now().Sub(start))
				return err
			}
		}
	}
	waited := l.clock.Now().Sub(start)

	err := deliver.Deliver(ctx, dest, msg)
	d.last = l.clock.Now()

	if err != nil {
		l.log.Error("send failed", "destination", dest, "err", err)
		l.metrics.ObserveSend("error", waited)
		return fmt.Errorf("%w: %w", ErrDeliver, err)
	}
	l.metrics.ObserveSend("ok", waited)
	return nil
}

// QueueDepth is the number of destinations with a send in progress or
// waiting on the spacing floor. It is an estimate for diagnostics.
func (l *Limiter) QueueDepth() int {
	return int(l.held.Load())
}

// Destinations returns how many destinations have been seen.
func (l *Limiter) Destinations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.dests)
}
