package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Redis publishes and subscribes through Redis pub/sub channels.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Dial parses a redis:// URL and verifies the server answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rc := redis.NewClient(opts)
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rc, nil
}

func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	return r.client.Publish(ctx, topic, payload).Err()
}

// Subscribe calls handler for every message on topic. Handler errors are
// logged and do not stop the subscription. When the channel closes the
// subscription is re-established after a second.
func (r *Redis) Subscribe(ctx context.Context, topic string, handler func([]byte) error) error {
	for {
		sub := r.client.Subscribe(ctx, topic)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		ch := sub.Channel()
	loop:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return nil
			case msg, ok := <-ch:
				if !ok {
					break loop
				}
				if err := handler([]byte(msg.Payload)); err != nil {
					log.WithError(err).WithField("topic", topic).Error("handle message")
				}
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.WithField("topic", topic).Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
