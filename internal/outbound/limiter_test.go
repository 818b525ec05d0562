package outbound

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/metrics"
)

// fakeClock advances only when something sleeps on it.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

type recorder struct {
	mu    sync.Mutex
	clock Clock
	sent  []delivery
	fail  error
	delay time.Duration
}

type delivery struct {
	dest string
	text string
	at   time.Time
}

func (r *recorder) Deliver(ctx context.Context, dest string, msg event.Message) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, delivery{dest: dest, text: msg.Text, at: r.clock.Now()})
	return r.fail
}

func (r *recorder) deliveries(dest string) []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []delivery
	for _, d := range r.sent {
		if d.dest == dest {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

func TestSendSpacingWithFakeClock(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	rec := &recorder{clock: clock}
	l := NewLimiter(WithClock(clock))
	start := clock.Now()

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, l.Send(context.Background(), "42", event.Message{Text: text}, rec))
	}

	got := rec.deliveries("42")
	require.Len(t, got, 3)
	assert.Equal(t, time.Duration(0), got[0].at.Sub(start))
	assert.Equal(t, 800*time.Millisecond, got[1].at.Sub(start))
	assert.Equal(t, 1600*time.Millisecond, got[2].at.Sub(start))
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].text, got[1].text, got[2].text})
}

func TestSendFirstMessageIsImmediate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	rec := &recorder{clock: clock}
	l := NewLimiter(WithClock(clock))

	require.NoError(t, l.Send(context.Background(), "a", event.Message{Text: "x"}, rec))
	require.NoError(t, l.Send(context.Background(), "b", event.Message{Text: "y"}, rec))

	assert.Equal(t, time.Unix(1000, 0), rec.deliveries("a")[0].at)
	assert.Equal(t, time.Unix(1000, 0), rec.deliveries("b")[0].at)
	assert.Equal(t, 2, l.Destinations())
}

func TestConcurrentDestinationsAreIndependent(t *testing.T) {
	const interval = 100 * time.Millisecond
	rec := &recorder{clock: realClock{}}
	l := NewLimiter(WithMinInterval(interval))
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Send(context.Background(), "42", event.Message{Text: "g"}, rec))
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, l.Send(context.Background(), "43", event.Message{Text: "h"}, rec))
	}()
	wg.Wait()

	busy := rec.deliveries("42")
	require.Len(t, busy, 3)
	for i := 1; i < len(busy); i++ {
		assert.GreaterOrEqual(t, busy[i].at.Sub(busy[i-1].at), interval)
	}

	other := rec.deliveries("43")
	require.Len(t, other, 1)
	assert.Less(t, other[0].at.Sub(start), interval/2)
}

func TestSlowDeliveryDoesNotBlockOtherDestinations(t *testing.T) {
	slow := &recorder{clock: realClock{}, delay: 300 * time.Millisecond}
	fast := &recorder{clock: realClock{}}
	l := NewLimiter(WithMinInterval(10 * time.Millisecond))

	go func() {
		_ = l.Send(context.Background(), "slow", event.Message{Text: "x"}, slow)
	}()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, l.QueueDepth())

	start := time.Now()
	require.NoError(t, l.Send(context.Background(), "fast", event.Message{Text: "y"}, fast))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestDeliveryFailureStillAdvancesSpacing(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	rec := &recorder{clock: clock, fail: errors.New("network down")}
	l := NewLimiter(WithClock(clock))

	err := l.Send(context.Background(), "g", event.Message{Text: "a"}, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliver)

	rec.fail = nil
	require.NoError(t, l.Send(context.Background(), "g", event.Message{Text: "b"}, rec))

	got := rec.deliveries("g")
	require.Len(t, got, 2)
	assert.Equal(t, 800*time.Millisecond, got[1].at.Sub(got[0].at))
	assert.Equal(t, 0, l.QueueDepth())
}

func TestCancelledWhileWaitingDoesNotDeliver(t *testing.T) {
	rec := &recorder{clock: realClock{}}
	l := NewLimiter(WithMinInterval(time.Second))

	require.NoError(t, l.Send(context.Background(), "g", event.Message{Text: "a"}, rec))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Send(ctx, "g", event.Message{Text: "b"}, rec)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, rec.deliveries("g"), 1)
	assert.Equal(t, 0, l.QueueDepth())
}

func TestNegativeIntervalIsZero(t *testing.T) {
	l := NewLimiter(WithMinInterval(-time.Second))
	assert.Equal(t, time.Duration(0), l.MinInterval())
	assert.Equal(t, DefaultMinInterval, NewLimiter().MinInterval())
}

func TestSendRecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	require.NoError(t, m.Register())
	clock := &fakeClock{now: time.Unix(0, 0)}
	l := NewLimiter(WithClock(clock), WithMetrics(m))

	require.NoError(t, l.Send(context.Background(), "g", event.Message{Text: "a"}, &recorder{clock: clock}))
}
