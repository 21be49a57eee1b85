// Package ingest consumes the feed's Kafka topic and hands decoded quotes
// to the daemon core. Messages are sharded by symbol so each worker sees a
// symbol's ticks in order, which makes stale-tick detection a local check.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Phil1999/TickrShell-Common/pkg/models"
)

// KafkaReader abstracts the input stream
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// TickHandler receives each fresh, decoded quote.
type TickHandler interface {
	HandleTick(ctx context.Context, q models.Quote)
}

type Ingester struct {
	logger     *zap.Logger
	reader     KafkaReader
	handler    TickHandler
	numWorkers int
}

func New(logger *zap.Logger, reader KafkaReader, handler TickHandler, numWorkers int) *Ingester {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Ingester{
		logger:     logger,
		reader:     reader,
		handler:    handler,
		numWorkers: numWorkers,
	}
}

func (in *Ingester) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, in.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < in.numWorkers; i++ {
		workerChans[i] = make(chan []byte, 100)
		wg.Add(1)
		go in.worker(ctx, i, workerChans[i], &wg)
	}

	// The read loop owns the worker channels: it is the only sender, so it
	// closes them after it stops. Closing from anywhere else races a send.
	go func() {
		defer func() {
			for _, ch := range workerChans {
				close(ch)
			}
		}()

		in.logger.Info("Ingester started", zap.Int("workers", in.numWorkers))
		for {
			m, err := in.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				in.logger.Error("Kafka Read Error", zap.Error(err))
				continue
			}

			// Deterministic sharding: same symbol always goes to the same worker.
			workerID := shardFor(m.Key, in.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				in.logger.Warn("Dropping slow packet", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	in.logger.Info("Shutdown signal received, waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (in *Ingester) worker(ctx context.Context, id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()

	// Latest seen timestamp per symbol; works because of deterministic
	// sharding. Ticks at or before it are replays and get dropped.
	lastSeen := make(map[string]int64)

	for payload := range msgs {
		var q models.Quote
		if err := json.Unmarshal(payload, &q); err != nil {
			in.logger.Error("JSON Unmarshal Error", zap.Error(err))
			continue
		}

		ts := q.Timestamp.UnixMilli()
		if prev, ok := lastSeen[q.Symbol]; ok && ts <= prev {
			in.logger.Debug("Skipping stale tick", zap.String("symbol", q.Symbol), zap.Int64("ts", ts))
			continue
		}
		lastSeen[q.Symbol] = ts

		in.handler.HandleTick(ctx, q)
		in.logger.Debug("Processed", zap.String("symbol", q.Symbol), zap.Int("worker_id", id))
	}
}

func shardFor(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32()) % numWorkers
}
