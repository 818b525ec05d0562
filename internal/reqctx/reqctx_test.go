package reqctx

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/botcore/internal/event"
)

func TestCurrentOutsideRequest(t *testing.T) {
	assert.Nil(t, Current(context.Background()))
	_, ok := From(context.Background())
	assert.False(t, ok)
}

func TestRunInstallsAndDropsContext(t *testing.T) {
	base := context.Background()
	rc := New("help", &event.Event{UserID: "u1"}, nil)

	err := Run(base, rc, func(ctx context.Context) error {
		got := Current(ctx)
		require.NotNil(t, got)
		assert.Equal(t, "u1", got.Event.UserID)
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, Current(base))
}

func TestNestedRunRestoresOuter(t *testing.T) {
	outer := New("outer", &event.Event{UserID: "outer"}, nil)
	inner := New("inner", &event.Event{UserID: "inner"}, nil)

	_ = Run(context.Background(), outer, func(ctx context.Context) error {
		_ = Run(ctx, inner, func(ictx context.Context) error {
			assert.Equal(t, "inner", Current(ictx).Event.UserID)
			return nil
		})
		assert.Equal(t, "outer", Current(ctx).Event.UserID)
		return nil
	})
}

func TestRunPropagatesPanic(t *testing.T) {
	base := context.Background()
	assert.Panics(t, func() {
		_ = Run(base, New("p", &event.Event{}, nil), func(ctx context.Context) error {
			panic("boom")
		})
	})
	assert.Nil(t, Current(base))
}

func TestIsolationAcrossGoroutines(t *testing.T) {
	const n = 64
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			rc := New("iso", &event.Event{UserID: user}, nil)
			_ = Run(context.Background(), rc, func(ctx context.Context) error {
				// yield so other requests interleave
				time.Sleep(time.Millisecond)
				if got := Current(ctx).Event.UserID; got != user {
					errs <- fmt.Errorf("request %d observed %s", i, got)
				}
				return nil
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestNewIDIsMonotonic(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}
