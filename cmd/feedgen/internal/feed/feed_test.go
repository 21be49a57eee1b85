package feed_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Phil1999/TickrShell-Common/cmd/feedgen/internal/feed"
	"github.com/Phil1999/TickrShell-Common/cmd/feedgen/internal/testutils"
	"github.com/Phil1999/TickrShell-Common/pkg/models"
)

func TestQuoteGenerator_Logic(t *testing.T) {
	writer := &testutils.CapturingWriter{}

	// Fix randomness: always pick index 0 (AAPL); a roll of 0.5 makes the
	// fluctuation (0.5*10)-5 = 0, so the price stays at base.
	rnd := &testutils.StubRand{Pick: 0, Roll: 0.5}
	clock := &testutils.StubClock{Current: time.Unix(0, 0)}

	gen := feed.NewQuoteGenerator(zap.NewNop(), writer,
		[]string{"AAPL"}, map[string]float64{"AAPL": 100.0},
		rnd, clock, 100*time.Millisecond)

	// StubClock.Sleep advances time instantly, so run briefly and cancel.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	gen.Run(ctx)

	writer.Mu.Lock()
	defer writer.Mu.Unlock()

	if len(writer.Written) == 0 {
		t.Fatal("expected quotes to be written")
	}

	msg := writer.Written[0]
	if string(msg.Key) != "AAPL" {
		t.Errorf("expected key AAPL, got %s", msg.Key)
	}

	var quote models.Quote
	if err := json.Unmarshal(msg.Value, &quote); err != nil {
		t.Fatalf("feed wrote invalid JSON: %v", err)
	}

	if quote.Symbol != "AAPL" {
		t.Errorf("expected AAPL, got %s", quote.Symbol)
	}
	if quote.Price != 100.0 {
		t.Errorf("expected price 100.0, got %f", quote.Price)
	}
	if quote.ChangePercent == nil || *quote.ChangePercent != 0 {
		t.Errorf("expected zero change, got %v", quote.ChangePercent)
	}
	if quote.Currency != models.DefaultCurrency {
		t.Errorf("expected USD quotes, got %s", quote.Currency)
	}
}

func TestQuoteGenerator_WriterFailureKeepsRunning(t *testing.T) {
	writer := &testutils.CapturingWriter{ShouldFail: true}
	rnd := &testutils.StubRand{Pick: 0, Roll: 0.5}
	clock := &testutils.StubClock{Current: time.Unix(0, 0)}

	gen := feed.NewQuoteGenerator(zap.NewNop(), writer,
		[]string{"AAPL"}, map[string]float64{"AAPL": 100.0},
		rnd, clock, 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// Must return via ctx cancellation, not panic or exit on write errors.
	gen.Run(ctx)
}

func TestTopicBootstrap_CreatesWithConfiguredPartitions(t *testing.T) {
	broker := &testutils.StubBroker{}
	tb := feed.NewTopicBootstrap(zap.NewNop(), broker, &testutils.StubClock{}, 6)

	if err := tb.Ensure([]string{"broker:9092"}, "stock_quotes"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if len(broker.Topics) != 1 {
		t.Fatalf("expected 1 topic created, got %d", len(broker.Topics))
	}
	created := broker.Topics[0]
	if created.Topic != "stock_quotes" {
		t.Errorf("expected topic stock_quotes, got %s", created.Topic)
	}
	if created.NumPartitions != 6 {
		t.Errorf("expected 6 partitions, got %d", created.NumPartitions)
	}
}

func TestTopicBootstrap_NonPositivePartitionsClampedToOne(t *testing.T) {
	broker := &testutils.StubBroker{}
	tb := feed.NewTopicBootstrap(zap.NewNop(), broker, &testutils.StubClock{}, 0)

	if err := tb.Ensure([]string{"broker:9092"}, "stock_quotes"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if broker.Topics[0].NumPartitions != 1 {
		t.Errorf("expected clamp to 1 partition, got %d", broker.Topics[0].NumPartitions)
	}
}

func TestTopicBootstrap_UnreachableBrokersError(t *testing.T) {
	broker := &testutils.StubBroker{DialErr: errors.New("connection refused")}
	tb := feed.NewTopicBootstrap(zap.NewNop(), broker, &testutils.StubClock{}, 4)

	if err := tb.Ensure([]string{"a:9092", "b:9092"}, "stock_quotes"); err == nil {
		t.Fatal("expected error when no broker is reachable")
	}
}
