package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Stock feed drivers accepted by STOCK_FEED_DRIVER.
const (
	FeedWebSocket = "websocket"
	FeedRedis     = "redis"
	FeedKafka     = "kafka"
	FeedNone      = "none"
)

type Config struct {
	AppEnv   string
	LogLevel string
	HTTPAddr string

	CartAPIURL    string
	ProductAPIURL string
	APITimeout    time.Duration
	APIRateLimit  float64
	APIRateBurst  int

	ResolveConcurrency int
	LoginReturnPath    string
	NoticeBuffer       int

	StockFeedDriver string
	StockFeedURL    string
	RedisAddr       string
	KafkaBrokers    []string
	KafkaStockTopic string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:   os.Getenv("APP_ENV"),
		LogLevel: os.Getenv("LOG_LEVEL"),
		HTTPAddr: getenv("HTTP_ADDR", ":8090"),

		CartAPIURL:    strings.TrimRight(os.Getenv("CART_API_URL"), "/"),
		ProductAPIURL: strings.TrimRight(os.Getenv("PRODUCT_API_URL"), "/"),
		APITimeout:    getDuration("API_TIMEOUT", 10*time.Second),
		APIRateLimit:  getFloat("API_RATE_LIMIT", 10),
		APIRateBurst:  getInt("API_RATE_BURST", 20),

		ResolveConcurrency: getInt("RESOLVE_CONCURRENCY", 8),
		LoginReturnPath:    getenv("LOGIN_RETURN_PATH", "/cart"),
		NoticeBuffer:       getInt("NOTICE_BUFFER", 50),

		StockFeedDriver: strings.ToLower(getenv("STOCK_FEED_DRIVER", FeedWebSocket)),
		StockFeedURL:    os.Getenv("STOCK_FEED_URL"),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:    splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
		KafkaStockTopic: getenv("KAFKA_STOCK_TOPIC", "cart.stock.updated"),
	}

	if cfg.CartAPIURL == "" {
		log.Fatal("Environment variables not loaded properly: CART_API_URL is required")
	}
	if cfg.ProductAPIURL == "" {
		cfg.ProductAPIURL = cfg.CartAPIURL
	}

	return cfg
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return n
}

func getFloat(k string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(k), 64)
	if err != nil {
		return def
	}
	return f
}

func getDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
