package changefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Postgres listens on the NOTIFY channels raised by the row triggers of the
// engagement tables. Channel names equal topic names.
type Postgres struct {
	*hub
	listener *pq.Listener
	logger   *zap.Logger

	mu        sync.Mutex
	listening map[Topic]bool
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewPostgres(dsn string, logger *zap.Logger) (*Postgres, error) {
	p := &Postgres{
		hub:       newHub(),
		logger:    logger,
		listening: make(map[Topic]bool),
		done:      make(chan struct{}),
	}
	p.listener = pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("postgres listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := p.listener.Ping(); err != nil {
		p.listener.Close()
		return nil, fmt.Errorf("failed to connect change feed listener: %w", err)
	}

	p.wg.Add(1)
	go p.run()
	return p, nil
}

func (p *Postgres) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case n, ok := <-p.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnected: notifications may have been missed.
				p.notifyAll()
				continue
			}
			p.notify(Topic(n.Channel))
		case <-time.After(90 * time.Second):
			go p.listener.Ping()
		}
	}
}

func (p *Postgres) Subscribe(ctx context.Context, topic Topic) (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.listening[topic] {
		if err := p.listener.Listen(string(topic)); err != nil && err != pq.ErrChannelAlreadyOpen {
			return nil, fmt.Errorf("listen %s: %w", topic, err)
		}
		p.listening[topic] = true
	}
	return p.subscribe(ctx, topic)
}

// Publish is a no-op: the table triggers notify on every write.
func (p *Postgres) Publish(ctx context.Context, topic Topic) error {
	return nil
}

func (p *Postgres) Close() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	close(p.done)
	err := p.listener.Close()
	p.wg.Wait()
	p.close()
	return err
}
