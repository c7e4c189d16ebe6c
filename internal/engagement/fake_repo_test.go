package engagement

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository for widget and handler tests.
type memRepo struct {
	mu           sync.Mutex
	visitors     map[string]Visitor
	feedback     []FeedbackType
	testimonials []Testimonial
	err          error
	listCalls    int
}

func newMemRepo() *memRepo {
	return &memRepo{visitors: make(map[string]Visitor)}
}

func (m *memRepo) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *memRepo) UpsertVisitor(ctx context.Context, id string, seen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.visitors[id] = Visitor{SessionID: id, IsOnline: true, LastSeen: seen}
	return nil
}

func (m *memRepo) MarkVisitorOffline(ctx context.Context, id string, seen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if v, ok := m.visitors[id]; ok {
		v.IsOnline = false
		v.LastSeen = seen
		m.visitors[id] = v
	}
	return nil
}

func (m *memRepo) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for id, v := range m.visitors {
		if v.IsOnline && v.LastSeen.Before(cutoff) {
			v.IsOnline = false
			m.visitors[id] = v
			n++
		}
	}
	return n, nil
}

func (m *memRepo) ListOnlineSessionIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.err != nil {
		return nil, m.err
	}
	var ids []string
	for id, v := range m.visitors {
		if v.IsOnline {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memRepo) InsertFeedback(ctx context.Context, t FeedbackType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.feedback = append(m.feedback, t)
	return nil
}

func (m *memRepo) CountFeedbackByType(ctx context.Context) (map[FeedbackType]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	counts := make(map[FeedbackType]int)
	for _, t := range m.feedback {
		counts[t]++
	}
	return counts, nil
}

func (m *memRepo) InsertDetailedFeedback(ctx context.Context, d DetailedFeedback) (*Testimonial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	t := Testimonial{
		ID:          uuid.New(),
		Name:        d.Name,
		Designation: d.Designation,
		StarRating:  d.StarRating,
		Comment:     d.Comment,
		CreatedAt:   time.Now().Add(time.Duration(len(m.testimonials)) * time.Millisecond),
	}
	m.testimonials = append(m.testimonials, t)
	return &t, nil
}

func (m *memRepo) ListTestimonials(ctx context.Context, limit int) ([]Testimonial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	list := append([]Testimonial{}, m.testimonials...)
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *memRepo) visitor(id string) (Visitor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visitors[id]
	return v, ok
}
