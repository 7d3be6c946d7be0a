package stockfeed

import (
	"context"
	"fmt"

	"storefront-cart/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Per-user stock channel: stock:user:{user_id}
const KeyStockChannel = "stock:user:%s"

func ChannelForUser(userID string) string {
	return fmt.Sprintf(KeyStockChannel, userID)
}

// RedisSource reads events published on per-user pub/sub channels.
type RedisSource struct {
	rdb *redis.Client
}

func NewRedisSource(rdb *redis.Client) *RedisSource {
	return &RedisSource{rdb: rdb}
}

func (s *RedisSource) Subscribe(ctx context.Context, userID string, h Handler) (Subscription, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "stockfeed"),
		zap.String("driver", "redis"),
		zap.String("channel", ChannelForUser(userID)),
	)

	ps := s.rdb.Subscribe(ctx, ChannelForUser(userID))
	// wait for the subscription confirmation so a dead server fails here
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		log.Error("subscribe failed", zap.Error(err))
		return nil, fmt.Errorf("subscribe stock channel: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel, ps.Close)
	ch := ps.Channel()

	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		defer sub.stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					log.Warn("stock channel closed")
					return
				}
				dispatch(log, []byte(m.Payload), h)
			}
		}
	}()

	log.Info("subscribed")
	return sub, nil
}
