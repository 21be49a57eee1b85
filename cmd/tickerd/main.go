package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Phil1999/TickrShell-Common/cmd/tickerd/internal/ingest"
	"github.com/Phil1999/TickrShell-Common/cmd/tickerd/internal/server"
	"github.com/Phil1999/TickrShell-Common/pkg/cache"
	"github.com/Phil1999/TickrShell-Common/pkg/config"
	"github.com/Phil1999/TickrShell-Common/pkg/currency"
	"github.com/Phil1999/TickrShell-Common/pkg/store"
	"github.com/Phil1999/TickrShell-Common/pkg/transport"
)

const ingestWorkers = 4

// usdConverter is the converter used when the rate service is not
// configured away from USD; it only ever sees USD and echoes.
type usdConverter struct{}

func (usdConverter) Convert(amount float64, toCurrency string) (float64, error) {
	return amount, nil
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer st.Close()

	snapshots, err := cache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer snapshots.Close()

	pub := transport.NewPubSocket(logger)
	if err := pub.Bind(cfg.App.PubAddr); err != nil {
		logger.Fatal("Failed to bind broadcast socket", zap.Error(err))
	}
	defer pub.Close()

	rep := transport.NewRepSocket(logger)
	if err := rep.Bind(cfg.App.RepAddr); err != nil {
		logger.Fatal("Failed to bind exchange socket", zap.Error(err))
	}
	rep.SetRecvTimeout(250 * time.Millisecond)
	defer rep.Close()

	// The rate service is optional: without it the daemon serves USD only.
	var conv server.Converter = usdConverter{}
	if c, err := currency.NewConverter(cfg.Currency.Endpoint, logger); err != nil {
		logger.Warn("Rate service unavailable, serving USD only", zap.Error(err))
	} else {
		c.Timeout = time.Duration(cfg.Currency.TimeoutMs) * time.Millisecond
		defer c.Close()
		conv = c
	}

	srv := server.New(logger, st, snapshots,
		transport.NewMessageSocket(pub, logger),
		transport.NewMessageSocket(rep, logger),
		conv,
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	in := ingest.New(logger, reader, srv, ingestWorkers)

	go srv.RunExchange(ctx)
	go func() {
		if err := in.Run(ctx); err != nil {
			logger.Error("Ingester stopped", zap.Error(err))
		}
	}()

	logger.Info("Daemon started",
		zap.String("pub_addr", cfg.App.PubAddr),
		zap.String("rep_addr", cfg.App.RepAddr))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutdown signal received")
	cancel()
	logger.Info("Shutdown Complete")
}
