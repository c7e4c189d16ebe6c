package engagement

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"neuro-ai/internal/changefeed"
)

// Presence writes the online/offline record of a session.
type Presence struct {
	repo   Repository
	feed   changefeed.Feed
	logger *zap.Logger
	now    func() time.Time
}

func NewPresence(repo Repository, feed changefeed.Feed, logger *zap.Logger) *Presence {
	return &Presence{repo: repo, feed: feed, logger: logger, now: time.Now}
}

// Heartbeat marks the session online and refreshes its last-seen time.
func (p *Presence) Heartbeat(ctx context.Context, sess SessionContext, ip string) error {
	if err := p.repo.UpsertVisitor(ctx, sess.VisitorID(ip), p.now().UTC()); err != nil {
		return err
	}
	p.publish(ctx, changefeed.TopicVisitors)
	return nil
}

// Leave marks the session offline.
func (p *Presence) Leave(ctx context.Context, sess SessionContext, ip string) error {
	if err := p.repo.MarkVisitorOffline(ctx, sess.VisitorID(ip), p.now().UTC()); err != nil {
		return err
	}
	p.publish(ctx, changefeed.TopicVisitors)
	return nil
}

func (p *Presence) publish(ctx context.Context, topic changefeed.Topic) {
	if p.feed == nil {
		return
	}
	if err := p.feed.Publish(ctx, topic); err != nil {
		p.logger.Warn("change publish failed", zap.String("topic", string(topic)), zap.Error(err))
	}
}

// CountUnique counts distinct visitors by the part of the id before the first "-",
// so several tabs behind one address count once.
func CountUnique(sessionIDs []string) int {
	seen := make(map[string]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		prefix, _, _ := strings.Cut(id, "-")
		seen[prefix] = struct{}{}
	}
	return len(seen)
}
