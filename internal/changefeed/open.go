package changefeed

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"neuro-ai/internal/config"
)

// Open builds the feed selected by cfg.Engagement.ChangeFeed.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Feed, error) {
	switch cfg.Engagement.ChangeFeed {
	case "postgres":
		return NewPostgres(cfg.Database.URL, logger)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		feed, err := NewRedis(ctx, client, logger)
		if err != nil {
			client.Close()
			return nil, err
		}
		return &ownedRedis{Redis: feed, client: client}, nil
	case "mqtt":
		return NewMQTT(MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      cfg.MQTT.QoS,
		}, logger)
	case "local":
		return NewLocal(), nil
	default:
		return nil, fmt.Errorf("unknown change feed %q", cfg.Engagement.ChangeFeed)
	}
}

// ownedRedis also closes the client Open created.
type ownedRedis struct {
	*Redis
	client *redis.Client
}

func (o *ownedRedis) Close() error {
	err := o.Redis.Close()
	if cerr := o.client.Close(); err == nil {
		err = cerr
	}
	return err
}
