package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Phil1999/TickrShell-Common/cmd/feedgen/internal/feed"
	"github.com/Phil1999/TickrShell-Common/pkg/config"
)

// Base prices for symbols without an explicit entry.
const defaultBasePrice = 100.0

var knownBasePrices = map[string]float64{
	"AAPL": 150.0, "GOOG": 2800.0, "TSLA": 700.0, "MSFT": 300.0, "AMZN": 3400.0,
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger, err := config.NewLogger(cfg.App.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	bootstrap := feed.NewTopicBootstrap(logger, feed.DefaultDialer(),
		feed.SystemClock{}, cfg.Kafka.Partitions)
	if err := bootstrap.Ensure(cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
		logger.Warn("topic bootstrap failed, writes may be dropped until the topic exists",
			zap.Error(err))
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}

	basePrices := make(map[string]float64, len(cfg.Feed.Tickers))
	for _, sym := range cfg.Feed.Tickers {
		if base, ok := knownBasePrices[sym]; ok {
			basePrices[sym] = base
		} else {
			basePrices[sym] = defaultBasePrice
		}
	}

	gen := feed.NewQuoteGenerator(
		logger,
		writer,
		cfg.Feed.Tickers,
		basePrices,
		feed.SeededRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))},
		feed.SystemClock{},
		time.Duration(cfg.Feed.IntervalMs)*time.Millisecond,
	)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go gen.Run(ctx)

	<-sigChan
	logger.Info("Shutdown signal received")
	cancel()

	// Flush the async write buffer before exiting.
	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}
