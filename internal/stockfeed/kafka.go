package stockfeed

import (
	"context"
	"errors"
	"fmt"

	"storefront-cart/internal/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaSource reads stock events from a topic keyed by user id. Readers are
// group-less and start at the tail of every partition, so no consumer group
// outlives a session.
type KafkaSource struct {
	brokers    []string
	topic      string
	newReader  func(cfg kafka.ReaderConfig) messageReader
	partitions func(ctx context.Context) ([]int, error)
}

func NewKafkaSource(brokers []string, topic string) *KafkaSource {
	s := &KafkaSource{
		brokers: brokers,
		topic:   topic,
		newReader: func(cfg kafka.ReaderConfig) messageReader {
			return kafka.NewReader(cfg)
		},
	}
	s.partitions = s.readPartitions
	return s
}

// readPartitions asks the first reachable broker for the topic's partition ids.
func (s *KafkaSource) readPartitions(ctx context.Context) ([]int, error) {
	lastErr := errors.New("no kafka brokers configured")
	for _, addr := range s.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		parts, err := conn.ReadPartitions(s.topic)
		_ = conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		ids := make([]int, 0, len(parts))
		for _, p := range parts {
			ids = append(ids, p.ID)
		}
		return ids, nil
	}
	return nil, lastErr
}

func (s *KafkaSource) Subscribe(ctx context.Context, userID string, h Handler) (Subscription, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "stockfeed"),
		zap.String("driver", "kafka"),
		zap.String("topic", s.topic),
		zap.String("user_id", userID),
	)

	ids, err := s.partitions(ctx)
	if err != nil {
		log.Error("failed to read partitions", zap.Error(err))
		return nil, fmt.Errorf("read partitions of %s: %w", s.topic, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("topic %s has no partitions", s.topic)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel, nil)

	for _, id := range ids {
		id := id
		r := s.newReader(kafka.ReaderConfig{
			Brokers:     s.brokers,
			Topic:       s.topic,
			Partition:   id,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
		})

		sub.wg.Add(1)
		go func() {
			defer sub.wg.Done()
			defer sub.stop()
			// one broken partition ends the whole stream
			defer cancel()
			defer r.Close()
			for {
				m, err := r.ReadMessage(subCtx)
				if err != nil {
					if subCtx.Err() == nil && !errors.Is(err, context.Canceled) {
						log.Warn("stock feed read failed", zap.Int("partition", id), zap.Error(err))
					}
					return
				}
				if string(m.Key) != userID {
					continue
				}
				dispatch(log, m.Value, h)
			}
		}()
	}

	log.Info("subscribed", zap.Int("partitions", len(ids)))
	return sub, nil
}
