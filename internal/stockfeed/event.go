package stockfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const EventStockUpdated = "stock-updated"

var ErrEmptyUserID = errors.New("user ID is required")

// StockUpdate is the payload of a stock-updated event.
type StockUpdate struct {
	ProductID string `json:"productId"`
	Stock     int    `json:"stock"`
}

// Envelope wraps every event pushed to a storefront session.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Handler receives decoded stock updates. It runs on the subscription's reader goroutine.
type Handler func(StockUpdate)

// Subscription is a live event stream. Close blocks until delivery has stopped.
// Done is closed once the stream ended, whether by Close or by a broken connection.
type Subscription interface {
	Done() <-chan struct{}
	Close() error
}

// Source opens per-user stock event subscriptions.
type Source interface {
	Subscribe(ctx context.Context, userID string, h Handler) (Subscription, error)
}

// Decode parses an envelope. ok is false for event types other than stock-updated.
func Decode(b []byte) (u StockUpdate, ok bool, err error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return StockUpdate{}, false, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventType != EventStockUpdated {
		return StockUpdate{}, false, nil
	}
	if err := json.Unmarshal(env.Payload, &u); err != nil {
		return StockUpdate{}, false, fmt.Errorf("decode payload: %w", err)
	}
	if u.ProductID == "" {
		return StockUpdate{}, false, errors.New("decode payload: missing productId")
	}
	return u, true, nil
}

// Encode builds the wire form of a stock-updated event.
func Encode(u StockUpdate) ([]byte, error) {
	payload, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		EventID:    uuid.NewString(),
		EventType:  EventStockUpdated,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
}
