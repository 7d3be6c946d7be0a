package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-cart/internal/auth"
	"storefront-cart/internal/cart"
	"storefront-cart/internal/config"
	"storefront-cart/internal/httpx"
	"storefront-cart/internal/logger"
	"storefront-cart/internal/middleware"
	"storefront-cart/internal/notify"
	"storefront-cart/internal/product"
	"storefront-cart/internal/stockfeed"
	"storefront-cart/internal/transport"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	logger.Init(cfg.AppEnv, cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, cleanup := newServer(ctx, cfg)
	defer cleanup()

	go func() {
		logger.L().Info("storefront cart listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.L().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L().Error("graceful shutdown failed", zap.Error(err))
	}
}

// newServer wires the session, upstream clients, stock feed and cart manager.
// cleanup closes the manager and whatever the feed driver opened.
func newServer(ctx context.Context, cfg *config.Config) (*http.Server, func()) {
	session := auth.NewSession()

	httpClient := &http.Client{Timeout: cfg.APITimeout}
	cartAPI := transport.NewClient(cfg.CartAPIURL,
		transport.WithHTTPClient(httpClient),
		transport.WithRateLimit(cfg.APIRateLimit, cfg.APIRateBurst),
		transport.WithTokenSource(session.Token),
	)
	productAPI := transport.NewClient(cfg.ProductAPIURL,
		transport.WithHTTPClient(httpClient),
		transport.WithRateLimit(cfg.APIRateLimit, cfg.APIRateBurst),
		transport.WithTokenSource(session.Token),
	)
	catalog := product.NewClient(productAPI)

	notices := notify.NewBuffer(cfg.NoticeBuffer)
	notifier := notify.Multi(notify.NewLogger(logger.L()), notices)

	opts := []cart.Option{
		cart.WithResolveConcurrency(cfg.ResolveConcurrency),
		cart.WithLoginReturnPath(cfg.LoginReturnPath),
	}
	feed, closeFeed := newStockFeed(cfg, session.Token)
	if feed != nil {
		opts = append(opts, cart.WithStockFeed(feed))
	}

	manager := cart.NewManager(cart.NewRemoteRepository(cartAPI), catalog, session, notifier, opts...)
	session.OnChange(func(ctx context.Context) {
		if err := manager.SyncAuth(ctx); err != nil {
			logger.FromCtx(ctx).Warn("cart sync after auth change failed", zap.Error(err))
		}
	})

	h := &httpx.CartHandler{
		Cart:    manager,
		Catalog: catalog,
		Session: session,
		Notices: notices,
		Stats:   manager.Stats(),
	}
	limiter := middleware.NewRateLimiter(ctx, cfg.APIRateLimit, cfg.APIRateBurst)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(h, limiter, session.CurrentUser),
		ReadHeaderTimeout: 5 * time.Second,
	}

	cleanup := func() {
		if err := manager.Close(); err != nil {
			logger.L().Warn("failed to close cart manager", zap.Error(err))
		}
		closeFeed()
	}
	return srv, cleanup
}

// newStockFeed picks the push channel named by STOCK_FEED_DRIVER. A nil source
// means the cart runs without live stock updates.
func newStockFeed(cfg *config.Config, token func() string) (stockfeed.Source, func()) {
	log := logger.L().With(zap.String("driver", cfg.StockFeedDriver))

	switch cfg.StockFeedDriver {
	case config.FeedWebSocket:
		if cfg.StockFeedURL == "" {
			log.Warn("STOCK_FEED_URL not set, live stock updates disabled")
			return nil, func() {}
		}
		return stockfeed.NewWebSocketSource(cfg.StockFeedURL, token), func() {}
	case config.FeedRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return stockfeed.NewRedisSource(rdb), func() { _ = rdb.Close() }
	case config.FeedKafka:
		if len(cfg.KafkaBrokers) == 0 {
			log.Warn("KAFKA_BROKERS not set, live stock updates disabled")
			return nil, func() {}
		}
		return stockfeed.NewKafkaSource(cfg.KafkaBrokers, cfg.KafkaStockTopic), func() {}
	case config.FeedNone:
		return nil, func() {}
	default:
		log.Warn("unknown stock feed driver, live stock updates disabled")
		return nil, func() {}
	}
}
