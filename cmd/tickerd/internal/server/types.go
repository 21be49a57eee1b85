package server

import (
	"context"

	"github.com/Phil1999/TickrShell-Common/pkg/models"
	"github.com/Phil1999/TickrShell-Common/pkg/protocol"
)

// QuoteStore is the durable side: subscriptions and price history.
type QuoteStore interface {
	SavePrice(q models.Quote) error
	GetPriceHistory(symbol string, limit int) ([]models.Quote, error)
	SaveSubscription(symbol string) error
	RemoveSubscription(symbol string) error
	Subscriptions() ([]string, error)
}

// LatestCache holds the most recent quote per symbol.
type LatestCache interface {
	SetLatest(ctx context.Context, q models.Quote) error
	GetLatest(ctx context.Context, symbol string) (*models.Quote, error)
}

// Publisher is the broadcast side of the daemon.
type Publisher interface {
	Send(env protocol.Envelope) error
}

// Responder is the exchange side of the daemon.
type Responder interface {
	Receive(nonBlocking bool) (*protocol.Envelope, error)
	Send(env protocol.Envelope) error
}

// Converter turns USD amounts into the display currency.
type Converter interface {
	Convert(amount float64, toCurrency string) (float64, error)
}
