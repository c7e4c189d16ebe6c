package intake

import (
	"sync"
	"time"
)

// StatusRotator cycles through status messages on a fixed interval. It is cosmetic
// and has no link to request progress. Stop must be called once the work settles.
type StatusRotator struct {
	messages []string
	interval time.Duration
	onChange func(string)

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewStatusRotator(messages []string, interval time.Duration, onChange func(string)) *StatusRotator {
	return &StatusRotator{
		messages: messages,
		interval: interval,
		onChange: onChange,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start shows the first message immediately and rotates in the background.
func (r *StatusRotator) Start() {
	if len(r.messages) == 0 || r.interval <= 0 {
		close(r.done)
		return
	}
	r.onChange(r.messages[0])
	go r.loop()
}

func (r *StatusRotator) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			idx = (idx + 1) % len(r.messages)
			r.onChange(r.messages[idx])
		}
	}
}

// Stop cancels the interval and waits for the loop to exit. Safe to call twice.
func (r *StatusRotator) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}
