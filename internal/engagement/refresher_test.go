package engagement

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefresher_CoalescesTriggersDuringRefresh(t *testing.T) {
	var calls int32
	gate := make(chan struct{})
	started := make(chan struct{}, 10)

	r := NewRefresher(time.Hour, func(ctx context.Context) {
		atomic.AddInt32(&calls, 1)
		started <- struct{}{}
		if atomic.LoadInt32(&calls) == 1 {
			<-gate
		}
	})
	push := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, push)
		close(done)
	}()

	<-started
	for i := 0; i < 5; i++ {
		r.Kick()
		select {
		case push <- struct{}{}:
		default:
		}
	}
	close(gate)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
}

func TestRefresher_IntervalAndPush(t *testing.T) {
	var calls int32
	r := NewRefresher(10*time.Millisecond, func(ctx context.Context) { atomic.AddInt32(&calls, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, nil)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
}

func TestRefresher_ClosedPushKeepsPolling(t *testing.T) {
	var calls int32
	r := NewRefresher(10*time.Millisecond, func(ctx context.Context) { atomic.AddInt32(&calls, 1) })
	push := make(chan struct{})
	close(push)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, push)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
}
