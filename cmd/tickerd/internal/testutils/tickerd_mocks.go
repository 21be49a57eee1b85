package testutils

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/Phil1999/TickrShell-Common/pkg/models"
	"github.com/Phil1999/TickrShell-Common/pkg/protocol"
)

type MockKafkaReader struct {
	Messages []kafka.Message
	Index    int
	Mu       sync.Mutex
	// Closed simulates a closed connection or end of stream
	Closed bool
}

func (m *MockKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Closed {
		return kafka.Message{}, io.EOF
	}

	if m.Index >= len(m.Messages) {
		// DeadlineExceeded cleanly stops the read loop in tests.
		return kafka.Message{}, context.DeadlineExceeded
	}

	msg := m.Messages[m.Index]
	m.Index++
	return msg, nil
}

func (m *MockKafkaReader) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

// FloodingKafkaReader replays one message as fast as callers can read it,
// until the context is cancelled.
type FloodingKafkaReader struct {
	Message kafka.Message
}

func (f *FloodingKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	return f.Message, nil
}

func (f *FloodingKafkaReader) Close() error { return nil }

// TickRecorder captures every quote handed to HandleTick.
type TickRecorder struct {
	Mu    sync.Mutex
	Ticks []models.Quote
}

func (r *TickRecorder) HandleTick(ctx context.Context, q models.Quote) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.Ticks = append(r.Ticks, q)
}

// MockStore is an in-memory QuoteStore with scriptable failures.
type MockStore struct {
	Mu         sync.Mutex
	Prices     []models.Quote
	Subs       []string
	ShouldFail bool
}

var errStore = errors.New("store error")

func (m *MockStore) SavePrice(q models.Quote) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errStore
	}
	m.Prices = append(m.Prices, q)
	return nil
}

func (m *MockStore) GetPriceHistory(symbol string, limit int) ([]models.Quote, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return nil, errStore
	}
	var history []models.Quote
	for i := len(m.Prices) - 1; i >= 0 && len(history) < limit; i-- {
		if m.Prices[i].Symbol == symbol {
			history = append(history, m.Prices[i])
		}
	}
	return history, nil
}

func (m *MockStore) SaveSubscription(symbol string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errStore
	}
	for _, s := range m.Subs {
		if s == symbol {
			return nil
		}
	}
	m.Subs = append(m.Subs, symbol)
	return nil
}

func (m *MockStore) RemoveSubscription(symbol string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errStore
	}
	for i, s := range m.Subs {
		if s == symbol {
			m.Subs = append(m.Subs[:i], m.Subs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MockStore) Subscriptions() ([]string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return nil, errStore
	}
	return append([]string(nil), m.Subs...), nil
}

// MockCache is an in-memory LatestCache.
type MockCache struct {
	Mu         sync.Mutex
	Latest     map[string]models.Quote
	ShouldFail bool
}

func NewMockCache() *MockCache {
	return &MockCache{Latest: make(map[string]models.Quote)}
}

func (m *MockCache) SetLatest(ctx context.Context, q models.Quote) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("cache error")
	}
	m.Latest[q.Symbol] = q
	return nil
}

func (m *MockCache) GetLatest(ctx context.Context, symbol string) (*models.Quote, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("cache error")
	}
	q, ok := m.Latest[symbol]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

// MockPublisher records broadcast envelopes.
type MockPublisher struct {
	Mu        sync.Mutex
	Published []protocol.Envelope
}

func (m *MockPublisher) Send(env protocol.Envelope) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Published = append(m.Published, env)
	return nil
}

// MockResponder feeds scripted requests in and records replies.
type MockResponder struct {
	Mu       sync.Mutex
	Requests []protocol.Envelope
	Index    int
	Replies  []protocol.Envelope
}

func (m *MockResponder) Receive(nonBlocking bool) (*protocol.Envelope, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Index >= len(m.Requests) {
		return nil, errors.New("no more requests")
	}
	req := m.Requests[m.Index]
	m.Index++
	return &req, nil
}

func (m *MockResponder) Send(env protocol.Envelope) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Replies = append(m.Replies, env)
	return nil
}

// MockConverter applies a fixed rate, or fails on demand.
type MockConverter struct {
	Rate       float64
	ShouldFail bool
	Calls      int
}

func (m *MockConverter) Convert(amount float64, toCurrency string) (float64, error) {
	m.Calls++
	if m.ShouldFail {
		return 0, errors.New("rate service unavailable")
	}
	return amount * m.Rate, nil
}
