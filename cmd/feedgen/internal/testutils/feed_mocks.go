package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Phil1999/TickrShell-Common/cmd/feedgen/internal/feed"
)

// CapturingWriter records every message the feed writes.
type CapturingWriter struct {
	Mu         sync.Mutex
	Written    []kafka.Message
	ShouldFail bool
}

func (w *CapturingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.Mu.Lock()
	defer w.Mu.Unlock()
	if w.ShouldFail {
		return errors.New("broker unavailable")
	}
	w.Written = append(w.Written, msgs...)
	return nil
}

func (w *CapturingWriter) Close() error { return nil }

// StubClock advances instantly on Sleep so loops run without wall time.
type StubClock struct {
	Current time.Time
}

func (c *StubClock) Now() time.Time        { return c.Current }
func (c *StubClock) Sleep(d time.Duration) { c.Current = c.Current.Add(d) }

// StubRand returns fixed picks and rolls.
type StubRand struct {
	Pick int
	Roll float64
}

func (r *StubRand) Intn(n int) int   { return r.Pick }
func (r *StubRand) Float64() float64 { return r.Roll }

// StubBroker plays both the seed broker and the controller, recording the
// topics created against it.
type StubBroker struct {
	Topics     []kafka.TopicConfig
	DialErr    error
	Partitions int
}

func (b *StubBroker) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}

func (b *StubBroker) CreateTopics(topics ...kafka.TopicConfig) error {
	b.Topics = append(b.Topics, topics...)
	return nil
}

func (b *StubBroker) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	// Report created partitions as immediately visible.
	n := b.Partitions
	if n <= 0 && len(b.Topics) > 0 {
		n = b.Topics[len(b.Topics)-1].NumPartitions
	}
	parts := make([]kafka.Partition, n)
	for i := range parts {
		parts[i] = kafka.Partition{ID: i}
	}
	return parts, nil
}

func (b *StubBroker) Close() error { return nil }

func (b *StubBroker) DialContext(ctx context.Context, network, address string) (feed.BrokerConn, error) {
	if b.DialErr != nil {
		return nil, b.DialErr
	}
	return b, nil
}
