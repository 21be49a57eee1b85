// Package feed produces a synthetic stream of stock quotes onto Kafka.
// Each tick perturbs a symbol's base price by a bounded random fluctuation
// and reports the percent change against that base.
package feed

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Phil1999/TickrShell-Common/pkg/models"
)

// Clock and Rand are seams so tests can pin time and randomness.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type Rand interface {
	Intn(n int) int
	Float64() float64
}

// KafkaWriter is the slice of *kafka.Writer the feed uses.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

type SeededRand struct{ *rand.Rand }

func (r SeededRand) Intn(n int) int   { return r.Rand.Intn(n) }
func (r SeededRand) Float64() float64 { return r.Rand.Float64() }

type QuoteGenerator struct {
	logger     *zap.Logger
	writer     KafkaWriter
	tickers    []string
	basePrices map[string]float64
	rand       Rand
	clock      Clock
	interval   time.Duration
}

func NewQuoteGenerator(
	logger *zap.Logger,
	writer KafkaWriter,
	tickers []string,
	basePrices map[string]float64,
	rnd Rand,
	clock Clock,
	interval time.Duration,
) *QuoteGenerator {
	return &QuoteGenerator{
		logger:     logger,
		writer:     writer,
		tickers:    tickers,
		basePrices: basePrices,
		rand:       rnd,
		clock:      clock,
		interval:   interval,
	}
}

func (g *QuoteGenerator) Run(ctx context.Context) {
	g.logger.Info("feed started", zap.Strings("tickers", g.tickers))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if len(g.tickers) == 0 {
				g.clock.Sleep(time.Second)
				continue
			}

			symbol := g.tickers[g.rand.Intn(len(g.tickers))]
			base := g.basePrices[symbol]
			fluctuation := (g.rand.Float64() * 10) - 5
			price := base + fluctuation
			change := (price - base) / base * 100

			quote := models.Quote{
				Symbol:        symbol,
				Price:         price,
				Timestamp:     g.clock.Now().UTC(),
				ChangePercent: &change,
				Currency:      models.DefaultCurrency,
			}

			payload, err := json.Marshal(quote)
			if err != nil {
				g.logger.Error("failed to encode quote", zap.Error(err))
				continue
			}

			// Key ensures per-symbol partition ordering.
			err = g.writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte(symbol),
				Value: payload,
			})
			if err != nil {
				g.logger.Error("failed to write quote", zap.Error(err))
			} else {
				g.logger.Debug("quote sent", zap.String("symbol", symbol), zap.Float64("price", price))
			}

			g.clock.Sleep(g.interval)
		}
	}
}
