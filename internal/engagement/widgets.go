package engagement

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"neuro-ai/internal/changefeed"
)

// Widget refreshes never return errors: failures are logged and the last
// known state stays on display.

// VisitorCounter shows how many distinct visitors are online.
type VisitorCounter struct {
	repo         Repository
	offlineAfter time.Duration
	logger       *zap.Logger
	now          func() time.Time

	mu    sync.RWMutex
	count int
}

func NewVisitorCounter(repo Repository, offlineAfter time.Duration, logger *zap.Logger) *VisitorCounter {
	return &VisitorCounter{repo: repo, offlineAfter: offlineAfter, logger: logger, now: time.Now}
}

func (c *VisitorCounter) Refresh(ctx context.Context) {
	if c.offlineAfter > 0 {
		if _, err := c.repo.MarkStaleOffline(ctx, c.now().UTC().Add(-c.offlineAfter)); err != nil {
			c.logger.Warn("stale visitor cleanup failed", zap.Error(err))
		}
	}
	ids, err := c.repo.ListOnlineSessionIDs(ctx)
	if err != nil {
		c.logger.Error("error fetching online visitors", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.count = CountUnique(ids)
	c.mu.Unlock()
}

func (c *VisitorCounter) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// FeedbackAnalytics shows the share of each feedback type.
type FeedbackAnalytics struct {
	repo   Repository
	logger *zap.Logger

	mu        sync.RWMutex
	analytics Analytics
}

func NewFeedbackAnalytics(repo Repository, logger *zap.Logger) *FeedbackAnalytics {
	return &FeedbackAnalytics{repo: repo, logger: logger, analytics: Analytics{Slices: []AnalyticsSlice{}}}
}

func (a *FeedbackAnalytics) Refresh(ctx context.Context) {
	counts, err := a.repo.CountFeedbackByType(ctx)
	if err != nil {
		a.logger.Error("error fetching feedback data", zap.Error(err))
		return
	}
	built := BuildAnalytics(counts)
	a.mu.Lock()
	a.analytics = built
	a.mu.Unlock()
}

func (a *FeedbackAnalytics) Analytics() Analytics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := a.analytics
	out.Slices = append([]AnalyticsSlice{}, a.analytics.Slices...)
	return out
}

// Testimonials shows the latest detailed feedback.
type Testimonials struct {
	repo   Repository
	limit  int
	logger *zap.Logger

	mu   sync.RWMutex
	list []Testimonial
}

func NewTestimonials(repo Repository, limit int, logger *zap.Logger) *Testimonials {
	return &Testimonials{repo: repo, limit: limit, logger: logger, list: []Testimonial{}}
}

func (t *Testimonials) Refresh(ctx context.Context) {
	list, err := t.repo.ListTestimonials(ctx, t.limit)
	if err != nil {
		t.logger.Error("error fetching testimonials", zap.Error(err))
		return
	}
	if t.limit > 0 && len(list) > t.limit {
		list = list[:t.limit]
	}
	t.mu.Lock()
	t.list = append([]Testimonial{}, list...)
	t.mu.Unlock()
}

func (t *Testimonials) List() []Testimonial {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Testimonial{}, t.list...)
}

// FeedbackService records quick and detailed feedback.
type FeedbackService struct {
	repo   Repository
	feed   changefeed.Feed
	logger *zap.Logger
}

func NewFeedbackService(repo Repository, feed changefeed.Feed, logger *zap.Logger) *FeedbackService {
	return &FeedbackService{repo: repo, feed: feed, logger: logger}
}

func (s *FeedbackService) Submit(ctx context.Context, t FeedbackType) error {
	if !t.Valid() {
		return ErrInvalidFeedbackType
	}
	if err := s.repo.InsertFeedback(ctx, t); err != nil {
		return err
	}
	s.logger.Info("feedback recorded", zap.String("feedback_type", string(t)))
	s.publish(ctx, changefeed.TopicFeedback)
	return nil
}

func (s *FeedbackService) SubmitDetailed(ctx context.Context, d DetailedFeedback) (*Testimonial, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	t, err := s.repo.InsertDetailedFeedback(ctx, d)
	if err != nil {
		return nil, err
	}
	s.logger.Info("detailed feedback recorded", zap.String("id", t.ID.String()), zap.Int("star_rating", t.StarRating))
	s.publish(ctx, changefeed.TopicDetailedFeedback)
	return t, nil
}

func (s *FeedbackService) publish(ctx context.Context, topic changefeed.Topic) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, topic); err != nil {
		s.logger.Warn("change publish failed", zap.String("topic", string(topic)), zap.Error(err))
	}
}
