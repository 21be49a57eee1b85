package ingest_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Phil1999/TickrShell-Common/cmd/tickerd/internal/ingest"
	"github.com/Phil1999/TickrShell-Common/cmd/tickerd/internal/testutils"
	"github.com/Phil1999/TickrShell-Common/pkg/models"
)

func tickMessage(t *testing.T, symbol string, price float64, ts int64) kafka.Message {
	t.Helper()
	q := models.Quote{
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.UnixMilli(ts).UTC(),
		Currency:  models.DefaultCurrency,
	}
	payload, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafka.Message{Key: []byte(symbol), Value: payload}
}

func runIngester(t *testing.T, messages []kafka.Message) *testutils.TickRecorder {
	t.Helper()
	reader := &testutils.MockKafkaReader{Messages: messages}
	recorder := &testutils.TickRecorder{}

	in := ingest.New(zap.NewNop(), reader, recorder, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := in.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	return recorder
}

func TestIngester_DeliversDecodedTicks(t *testing.T) {
	recorder := runIngester(t, []kafka.Message{
		tickMessage(t, "AAPL", 150, 1000),
		tickMessage(t, "TSLA", 700, 1000),
	})

	recorder.Mu.Lock()
	defer recorder.Mu.Unlock()
	if len(recorder.Ticks) != 2 {
		t.Fatalf("expected 2 ticks, got %d", len(recorder.Ticks))
	}
	seen := map[string]float64{}
	for _, q := range recorder.Ticks {
		seen[q.Symbol] = q.Price
	}
	if seen["AAPL"] != 150 || seen["TSLA"] != 700 {
		t.Errorf("unexpected ticks: %v", seen)
	}
}

func TestIngester_DropsStaleTicks(t *testing.T) {
	recorder := runIngester(t, []kafka.Message{
		tickMessage(t, "AAPL", 150, 2000),
		tickMessage(t, "AAPL", 149, 1000), // older: replay
		tickMessage(t, "AAPL", 150, 2000), // duplicate
		tickMessage(t, "AAPL", 151, 3000), // fresh
	})

	recorder.Mu.Lock()
	defer recorder.Mu.Unlock()
	if len(recorder.Ticks) != 2 {
		t.Fatalf("expected 2 fresh ticks, got %d", len(recorder.Ticks))
	}
	if recorder.Ticks[0].Price != 150 || recorder.Ticks[1].Price != 151 {
		t.Errorf("unexpected ticks: %+v", recorder.Ticks)
	}
}

func TestIngester_ShutdownMidStream(t *testing.T) {
	// Cancel while the reader is still producing: shutdown must complete
	// without panicking on the worker channels.
	msg := tickMessage(t, "AAPL", 150, 1000)
	reader := &testutils.FloodingKafkaReader{Message: msg}
	recorder := &testutils.TickRecorder{}

	in := ingest.New(zap.NewNop(), reader, recorder, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ingester did not shut down")
	}
}

func TestIngester_SkipsMalformedPayloads(t *testing.T) {
	recorder := runIngester(t, []kafka.Message{
		{Key: []byte("AAPL"), Value: []byte("{broken")},
		tickMessage(t, "AAPL", 150, 1000),
	})

	recorder.Mu.Lock()
	defer recorder.Mu.Unlock()
	if len(recorder.Ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(recorder.Ticks))
	}
	if recorder.Ticks[0].Price != 150 {
		t.Errorf("unexpected tick: %+v", recorder.Ticks[0])
	}
}
