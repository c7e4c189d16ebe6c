package engagement

import (
	"context"
	"time"
)

// Refresher drives one widget refresh from two trigger sources, an interval and
// push notifications, plus manual kicks. Triggers that arrive while a refresh is
// running collapse into a single follow-up refresh; refreshes never overlap.
type Refresher struct {
	refresh  func(ctx context.Context)
	interval time.Duration
	kick     chan struct{}
}

func NewRefresher(interval time.Duration, refresh func(ctx context.Context)) *Refresher {
	return &Refresher{
		refresh:  refresh,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests a refresh without waiting for it.
func (r *Refresher) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run refreshes once, then on every trigger until ctx ends. push may be nil;
// a closed push channel leaves only the interval and kicks.
func (r *Refresher) Run(ctx context.Context, push <-chan struct{}) {
	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	r.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-r.kick:
		case _, ok := <-push:
			if !ok {
				push = nil
				continue
			}
		}
		push = r.drain(tick, push)
		if ctx.Err() != nil {
			return
		}
		r.refresh(ctx)
	}
}

// drain consumes triggers that are already pending so they share this refresh.
func (r *Refresher) drain(tick <-chan time.Time, push <-chan struct{}) <-chan struct{} {
	for {
		select {
		case <-tick:
		case <-r.kick:
		case _, ok := <-push:
			if !ok {
				return nil
			}
		default:
			return push
		}
	}
}
