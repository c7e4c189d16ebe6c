package engagement

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"neuro-ai/internal/changefeed"
)

// IPLookup resolves the public address used in presence ids.
type IPLookup interface {
	PublicIP(ctx context.Context) (string, error)
}

// VisitorTracker keeps one local session online and counts the visitors,
// the way a single open page does.
type VisitorTracker struct {
	presence          *Presence
	counter           *VisitorCounter
	feed              changefeed.Feed
	lookup            IPLookup
	session           SessionContext
	heartbeatInterval time.Duration
	countInterval     time.Duration
	logger            *zap.Logger

	mu     sync.Mutex
	ip     string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type TrackerOptions struct {
	HeartbeatInterval time.Duration
	CountInterval     time.Duration
	OfflineAfter      time.Duration
}

func NewVisitorTracker(repo Repository, feed changefeed.Feed, lookup IPLookup, session SessionContext, opts TrackerOptions, logger *zap.Logger) *VisitorTracker {
	return &VisitorTracker{
		presence:          NewPresence(repo, feed, logger),
		counter:           NewVisitorCounter(repo, opts.OfflineAfter, logger),
		feed:              feed,
		lookup:            lookup,
		session:           session,
		heartbeatInterval: opts.HeartbeatInterval,
		countInterval:     opts.CountInterval,
		logger:            logger,
	}
}

// Start resolves the public address, sends the first heartbeat and starts the
// heartbeat and count loops. A failed lookup leaves the id as the bare token.
func (t *VisitorTracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	if t.lookup != nil {
		if ip, err := t.lookup.PublicIP(ctx); err != nil {
			t.logger.Warn("could not get IP, using session only", zap.Error(err))
		} else {
			t.ip = ip
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	ip := t.ip

	t.heartbeat(ctx, ip)

	var push <-chan struct{}
	if t.feed != nil {
		if ch, err := t.feed.Subscribe(ctx, changefeed.TopicVisitors); err != nil {
			t.logger.Warn("visitor subscription failed, polling only", zap.Error(err))
		} else {
			push = ch
		}
	}

	t.wg.Add(2)
	go func() {
		defer t.wg.Done()
		if t.heartbeatInterval <= 0 {
			return
		}
		ticker := time.NewTicker(t.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.heartbeat(ctx, ip)
			}
		}
	}()
	go func() {
		defer t.wg.Done()
		NewRefresher(t.countInterval, t.counter.Refresh).Run(ctx, push)
	}()
}

func (t *VisitorTracker) heartbeat(ctx context.Context, ip string) {
	if err := t.presence.Heartbeat(ctx, t.session, ip); err != nil {
		t.logger.Error("error updating visitor status", zap.Error(err))
	}
}

func (t *VisitorTracker) Count() int {
	return t.counter.Count()
}

// VisitorID is the presence key this tracker writes.
func (t *VisitorTracker) VisitorID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.VisitorID(t.ip)
}

// Stop ends the loops and marks the session offline.
func (t *VisitorTracker) Stop(ctx context.Context) {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	ip := t.ip
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	t.wg.Wait()

	if err := t.presence.Leave(ctx, t.session, ip); err != nil {
		t.logger.Error("error marking visitor offline", zap.Error(err))
	}
}
