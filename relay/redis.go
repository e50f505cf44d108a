package relay

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBus shares relay frames between processes over Redis pub/sub.
type RedisBus struct {
	client  *redis.Client
	channel string
}

func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	return &RedisBus{client: client, channel: channel}
}

// DialRedisBus connects to addr and checks the connection before returning.
func DialRedisBus(ctx context.Context, addr, password, channel string) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedisBus(client, channel), nil
}

func (b *RedisBus) Publish(ctx context.Context, frame []byte) error {
	if err := b.client.Publish(ctx, b.channel, frame).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", b.channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, deliver func(frame []byte)) error {
	ps := b.client.Subscribe(ctx, b.channel)
	defer ps.Close()

	// Wait for the subscription to be confirmed before reading messages.
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", b.channel)
			}
			deliver([]byte(msg.Payload))
		}
	}
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
