package intake

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type messageLog struct {
	mu   sync.Mutex
	msgs []string
}

func (l *messageLog) add(m string) {
	l.mu.Lock()
	l.msgs = append(l.msgs, m)
	l.mu.Unlock()
}

func (l *messageLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.msgs...)
}

func TestStatusRotator_CyclesInOrderAndStops(t *testing.T) {
	var log messageLog
	r := NewStatusRotator([]string{"a", "b", "c"}, 5*time.Millisecond, log.add)
	r.Start()

	require.Eventually(t, func() bool { return len(log.snapshot()) >= 5 }, time.Second, time.Millisecond)
	r.Stop()

	got := log.snapshot()
	for i, m := range got {
		assert.Equal(t, []string{"a", "b", "c"}[i%3], m)
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, len(got), len(log.snapshot()), "no ticks after Stop")

	r.Stop()
}

func TestStatusRotator_EmptyIsNoop(t *testing.T) {
	r := NewStatusRotator(nil, time.Millisecond, func(string) { t.Fatal("unexpected message") })
	r.Start()
	r.Stop()
}
