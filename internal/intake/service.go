package intake

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service owns the intake sessions of the process.
type Service interface {
	CreateSession(ctx context.Context) (*Flow, error)
	GetSession(ctx context.Context, id uuid.UUID) (*Flow, error)
	DiscardSession(ctx context.Context, id uuid.UUID) error
	Preview(ctx context.Context, ref string) (UploadedFile, bool)
	// Sweep discards sessions idle for longer than ttl and returns how many went.
	Sweep(ctx context.Context, ttl time.Duration) int
}

type service struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Flow

	predictor      Predictor
	previews       PreviewStore
	statusInterval time.Duration
	logger         *zap.Logger
}

func NewService(predictor Predictor, previews PreviewStore, statusInterval time.Duration, logger *zap.Logger) Service {
	return &service{
		sessions:       make(map[uuid.UUID]*Flow),
		predictor:      predictor,
		previews:       previews,
		statusInterval: statusInterval,
		logger:         logger,
	}
}

func (s *service) CreateSession(ctx context.Context) (*Flow, error) {
	f := NewFlow(s.predictor, s.previews, s.statusInterval)
	s.mu.Lock()
	s.sessions[f.ID()] = f
	s.mu.Unlock()
	s.logger.Debug("intake session created", zap.String("session_id", f.ID().String()))
	return f, nil
}

func (s *service) GetSession(ctx context.Context, id uuid.UUID) (*Flow, error) {
	s.mu.RLock()
	f, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return f, nil
}

func (s *service) DiscardSession(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	f, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	f.Discard()
	s.logger.Debug("intake session discarded", zap.String("session_id", id.String()))
	return nil
}

func (s *service) Preview(ctx context.Context, ref string) (UploadedFile, bool) {
	return s.previews.Open(ref)
}

func (s *service) Sweep(ctx context.Context, ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	var stale []*Flow
	s.mu.Lock()
	for id, f := range s.sessions {
		if f.State() == StateSubmitting {
			continue
		}
		if f.LastActive().Before(cutoff) {
			stale = append(stale, f)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, f := range stale {
		f.Discard()
	}
	if len(stale) > 0 {
		s.logger.Info("swept idle intake sessions", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is done.
func RunSweeper(ctx context.Context, svc Service, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.Sweep(ctx, ttl)
		}
	}
}
