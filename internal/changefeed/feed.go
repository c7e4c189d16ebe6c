// Package changefeed delivers "table changed" signals to widget refreshers.
// A signal carries no payload: subscribers re-read whatever they display.
package changefeed

import (
	"context"
	"errors"
	"sync"
)

type Topic string

const (
	TopicVisitors         Topic = "visitors"
	TopicFeedback         Topic = "feedback"
	TopicDetailedFeedback Topic = "detailed_feedback"
)

// Topics lists every topic the engagement widgets listen to.
var Topics = []Topic{TopicVisitors, TopicFeedback, TopicDetailedFeedback}

var ErrClosed = errors.New("change feed closed")

// Feed is a push transport for change signals.
//
// Subscribe returns a channel with room for one pending signal; bursts collapse
// into that one signal. The channel is closed when ctx ends or the feed closes.
type Feed interface {
	Subscribe(ctx context.Context, topic Topic) (<-chan struct{}, error)
	Publish(ctx context.Context, topic Topic) error
	Close() error
}

// hub fans signals out to subscribers. Every transport embeds one.
type hub struct {
	mu     sync.Mutex
	subs   map[Topic]map[chan struct{}]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[Topic]map[chan struct{}]struct{})}
}

func (h *hub) subscribe(ctx context.Context, topic Topic) (<-chan struct{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	ch := make(chan struct{}, 1)
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[chan struct{}]struct{})
	}
	h.subs[topic][ch] = struct{}{}

	go func() {
		<-ctx.Done()
		h.unsubscribe(topic, ch)
	}()
	return ch, nil
}

func (h *hub) unsubscribe(topic Topic, ch chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[topic][ch]; !ok {
		return
	}
	delete(h.subs[topic], ch)
	close(ch)
}

// notify never blocks: a subscriber with a pending signal is skipped.
func (h *hub) notify(topic Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *hub) notifyAll() {
	for _, t := range Topics {
		h.notify(t)
	}
}

func (h *hub) hasSubscribers(topic Topic) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic]) > 0
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, topic)
	}
}

// Local is an in-process feed. Writers in the same process publish to it.
type Local struct {
	*hub
}

func NewLocal() *Local {
	return &Local{hub: newHub()}
}

func (l *Local) Subscribe(ctx context.Context, topic Topic) (<-chan struct{}, error) {
	return l.subscribe(ctx, topic)
}

func (l *Local) Publish(ctx context.Context, topic Topic) error {
	l.notify(topic)
	return nil
}

func (l *Local) Close() error {
	l.close()
	return nil
}
