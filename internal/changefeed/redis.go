package changefeed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const redisPrefix = "neuro-ai:changes:"

// Redis carries change signals over pub/sub. Writers must Publish after each write.
type Redis struct {
	*hub
	client *redis.Client
	pubsub *redis.PubSub
	logger *zap.Logger

	mu        sync.Mutex
	listening map[Topic]bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewRedis(ctx context.Context, client *redis.Client, logger *zap.Logger) (*Redis, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	r := &Redis{
		hub:       newHub(),
		client:    client,
		pubsub:    client.Subscribe(ctx),
		logger:    logger,
		listening: make(map[Topic]bool),
	}
	r.wg.Add(1)
	go r.run()
	return r, nil
}

func (r *Redis) run() {
	defer r.wg.Done()
	for msg := range r.pubsub.Channel() {
		r.notify(Topic(strings.TrimPrefix(msg.Channel, redisPrefix)))
	}
}

func (r *Redis) Subscribe(ctx context.Context, topic Topic) (<-chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.listening[topic] {
		if err := r.pubsub.Subscribe(ctx, redisPrefix+string(topic)); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
		r.listening[topic] = true
	}
	return r.subscribe(ctx, topic)
}

func (r *Redis) Publish(ctx context.Context, topic Topic) error {
	if err := r.client.Publish(ctx, redisPrefix+string(topic), "changed").Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close stops the subscription. The redis client stays owned by the caller.
func (r *Redis) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.pubsub.Close()
		r.wg.Wait()
		r.close()
	})
	return err
}
