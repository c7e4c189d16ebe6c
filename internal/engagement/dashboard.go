package engagement

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"neuro-ai/internal/changefeed"
)

var ErrDashboardRunning = errors.New("dashboard already started")

// Snapshot is what the widgets currently display.
type Snapshot struct {
	OnlineVisitors int           `json:"online_visitors" yaml:"online_visitors"`
	Analytics      Analytics     `json:"analytics" yaml:"analytics"`
	Testimonials   []Testimonial `json:"testimonials" yaml:"testimonials"`
	UpdatedAt      time.Time     `json:"updated_at" yaml:"updated_at"`
}

type DashboardOptions struct {
	CountInterval     time.Duration
	AnalyticsInterval time.Duration
	OfflineAfter      time.Duration
	TestimonialLimit  int
}

// Dashboard owns the widgets, their refreshers and their feed subscriptions.
// Start corresponds to the first mount and Stop to the unmount.
type Dashboard struct {
	Counter      *VisitorCounter
	Analytics    *FeedbackAnalytics
	Testimonials *Testimonials

	feed   changefeed.Feed
	opts   DashboardOptions
	logger *zap.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	refreshers map[changefeed.Topic]*Refresher
	watchers   map[chan Snapshot]struct{}
	updatedAt  time.Time
}

func NewDashboard(repo Repository, feed changefeed.Feed, opts DashboardOptions, logger *zap.Logger) *Dashboard {
	return &Dashboard{
		Counter:      NewVisitorCounter(repo, opts.OfflineAfter, logger),
		Analytics:    NewFeedbackAnalytics(repo, logger),
		Testimonials: NewTestimonials(repo, opts.TestimonialLimit, logger),
		feed:         feed,
		opts:         opts,
		logger:       logger,
		watchers:     make(map[chan Snapshot]struct{}),
	}
}

// Start runs one refresh loop per widget. A widget whose feed subscription
// fails still refreshes on its interval.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return ErrDashboardRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	widgets := []struct {
		topic    changefeed.Topic
		interval time.Duration
		refresh  func(context.Context)
	}{
		{changefeed.TopicVisitors, d.opts.CountInterval, d.Counter.Refresh},
		{changefeed.TopicFeedback, d.opts.AnalyticsInterval, d.Analytics.Refresh},
		{changefeed.TopicDetailedFeedback, d.opts.AnalyticsInterval, d.Testimonials.Refresh},
	}

	d.refreshers = make(map[changefeed.Topic]*Refresher, len(widgets))
	for _, w := range widgets {
		w := w
		var push <-chan struct{}
		if d.feed != nil {
			ch, err := d.feed.Subscribe(ctx, w.topic)
			if err != nil {
				d.logger.Warn("change subscription failed, polling only", zap.String("topic", string(w.topic)), zap.Error(err))
			} else {
				push = ch
			}
		}
		r := NewRefresher(w.interval, func(ctx context.Context) {
			w.refresh(ctx)
			d.broadcast()
		})
		d.refreshers[w.topic] = r

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			r.Run(ctx, push)
		}()
	}

	d.logger.Info("engagement dashboard started")
	return nil
}

// Stop cancels the intervals, drops the subscriptions and waits for the loops.
// Watch channels are closed.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.refreshers = nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	d.wg.Wait()

	d.mu.Lock()
	for ch := range d.watchers {
		close(ch)
		delete(d.watchers, ch)
	}
	d.mu.Unlock()
	d.logger.Info("engagement dashboard stopped")
}

// Kick refreshes the widget of topic now, e.g. right after a local write.
func (d *Dashboard) Kick(topic changefeed.Topic) {
	d.mu.Lock()
	r := d.refreshers[topic]
	d.mu.Unlock()
	if r != nil {
		r.Kick()
	}
}

func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	updated := d.updatedAt
	d.mu.Unlock()
	return Snapshot{
		OnlineVisitors: d.Counter.Count(),
		Analytics:      d.Analytics.Analytics(),
		Testimonials:   d.Testimonials.List(),
		UpdatedAt:      updated,
	}
}

// Watch streams a snapshot after every widget refresh until ctx ends or the
// dashboard stops. A slow reader only sees the latest snapshot.
func (d *Dashboard) Watch(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	d.mu.Lock()
	d.watchers[ch] = struct{}{}
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		if _, ok := d.watchers[ch]; ok {
			delete(d.watchers, ch)
			close(ch)
		}
		d.mu.Unlock()
	}()
	return ch
}

func (d *Dashboard) broadcast() {
	d.mu.Lock()
	d.updatedAt = time.Now().UTC()
	d.mu.Unlock()
	snap := d.Snapshot()

	d.mu.Lock()
	defer d.mu.Unlock()
	for ch := range d.watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
