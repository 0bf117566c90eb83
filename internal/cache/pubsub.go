package cache

import (
	"context"

	"perpmonitor/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PriceChannel carries price update messages to dashboard subscribers.
const PriceChannel = "price_updates"

// Subscriber receives price updates published by SetPrice.
type Subscriber struct {
	pubsub *redis.PubSub
}

// Subscribe opens a subscription on the price channel.
func (c *Cache) Subscribe(ctx context.Context) (*Subscriber, error) {
	pubsub := c.client.Subscribe(ctx, PriceChannel)

	// Confirm the subscription before handing it out.
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, err
	}

	logger.Log.Info("Subscribed to price updates", zap.String("channel", PriceChannel))
	return &Subscriber{pubsub: pubsub}, nil
}

// Next blocks until the next price update message.
func (s *Subscriber) Next(ctx context.Context) (*redis.Message, error) {
	return s.pubsub.ReceiveMessage(ctx)
}

// Close ends the subscription.
func (s *Subscriber) Close() error {
	return s.pubsub.Close()
}
