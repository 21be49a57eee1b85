package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds all configuration for the tick distribution services.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Currency CurrencyConfig `mapstructure:"currency"`
	Feed     FeedConfig     `mapstructure:"feed"`
}

type AppConfig struct {
	PubAddr string `mapstructure:"pub_addr"` // broadcast endpoint the daemon binds
	RepAddr string `mapstructure:"rep_addr"` // exchange endpoint the daemon binds
	Env     string `mapstructure:"env"`      // e.g., "local", "prod"
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	GroupID    string   `mapstructure:"group_id"`
	Partitions int      `mapstructure:"partitions"`
}

type CurrencyConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type FeedConfig struct {
	Tickers    []string `mapstructure:"tickers"`
	IntervalMs int      `mapstructure:"interval_ms"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment first so flat vars like
	// APP_PUB_ADDR exist before viper binds them.
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	v.SetDefault("app.pub_addr", "tcp://127.0.0.1:5556")
	v.SetDefault("app.rep_addr", "tcp://127.0.0.1:5557")
	v.SetDefault("app.env", "local")

	v.SetDefault("database.path", "tickrshell.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "stock_quotes")
	v.SetDefault("kafka.group_id", "tickrshell-ingest")
	v.SetDefault("kafka.partitions", 4)

	v.SetDefault("currency.endpoint", "tcp://127.0.0.1:5555")
	v.SetDefault("currency.timeout_ms", 2000)

	v.SetDefault("feed.tickers", []string{"AAPL", "GOOG", "TSLA", "MSFT", "AMZN"})
	v.SetDefault("feed.interval_ms", 1000)

	// Dot-notation maps to underscores: "app.pub_addr" -> "APP_PUB_ADDR".
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit binds so flat env vars land in the nested structs.
	bindEnv(v, "app.pub_addr", "app.rep_addr", "app.env")
	bindEnv(v, "database.path")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id", "kafka.partitions")
	bindEnv(v, "currency.endpoint", "currency.timeout_ms")
	bindEnv(v, "feed.tickers", "feed.interval_ms")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if cfg.Currency.TimeoutMs <= 0 {
		return nil, fmt.Errorf("currency timeout must be positive")
	}

	return &cfg, nil
}

// NewLogger builds the service logger for the configured environment.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
