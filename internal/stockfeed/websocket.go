package stockfeed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"storefront-cart/internal/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketSource reads events from the storefront push endpoint.
type WebSocketSource struct {
	url    string
	token  func() string
	dialer *websocket.Dialer
}

func NewWebSocketSource(endpoint string, token func() string) *WebSocketSource {
	return &WebSocketSource{url: endpoint, token: token, dialer: websocket.DefaultDialer}
}

func (s *WebSocketSource) Subscribe(ctx context.Context, userID string, h Handler) (Subscription, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	u, err := url.Parse(s.url)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("user", userID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if s.token != nil {
		if tok := s.token(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "stockfeed"),
		zap.String("driver", "websocket"),
		zap.String("user_id", userID),
	)

	conn, _, err := s.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		log.Error("dial failed", zap.Error(err))
		return nil, fmt.Errorf("dial stock feed: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	// the watcher below owns closing conn
	sub := newSubscription(cancel, nil)

	sub.wg.Add(2)
	go func() {
		defer sub.wg.Done()
		<-subCtx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer sub.wg.Done()
		defer sub.stop()
		defer cancel()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if subCtx.Err() == nil {
					log.Warn("stock feed disconnected", zap.Error(err))
				}
				return
			}
			dispatch(log, msg, h)
		}
	}()

	log.Info("subscribed")
	return sub, nil
}
